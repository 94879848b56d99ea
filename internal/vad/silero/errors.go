package silero

import "errors"

// ErrUnavailable is returned when the binary was built without the sherpa tag.
var ErrUnavailable = errors.New("silero scorer requires a build with -tags sherpa")
