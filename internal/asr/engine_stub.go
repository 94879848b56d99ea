//go:build !sherpa

package asr

import (
	"fmt"

	"github.com/parleyhq/parley/internal/models"
)

// SherpaAvailable reports whether sherpa families can be loaded.
const SherpaAvailable = false

func newSherpaEngine(set models.Set, _ LoadOptions) (Engine, error) {
	return nil, fmt.Errorf("%w: %s (rebuild with -tags sherpa)", ErrFamilyUnavailable, set.Family)
}
