//go:build !sherpa

package silero

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithoutNativeRuntime(t *testing.T) {
	require.False(t, Available)
	_, err := New("/models/silero_vad.onnx", 16000, 512, 0.5)
	require.ErrorIs(t, err, ErrUnavailable)
}
