// Package sherpa loads offline recognizers through the sherpa-onnx runtime.
//
// The package only has an implementation when built with -tags sherpa.
package sherpa
