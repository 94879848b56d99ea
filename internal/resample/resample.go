// Package resample converts captured audio to the model sample rate.
package resample

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRate reports a non-positive sample rate.
var ErrInvalidRate = errors.New("sample rate must be positive")

// Resample converts samples from inputRate to outputRate by block averaging.
//
// Output sample i is the mean of the input samples in
// [round(i*ratio), round((i+1)*ratio)) where ratio = inputRate/outputRate,
// clipped to the input length. Equal rates return the input unchanged.
func Resample(samples []float32, inputRate, outputRate int) ([]float32, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("%w: input=%d output=%d", ErrInvalidRate, inputRate, outputRate)
	}
	if inputRate == outputRate {
		return samples, nil
	}

	ratio := float64(inputRate) / float64(outputRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	out := make([]float32, outLen)

	for i := range out {
		lo := int(math.Round(float64(i) * ratio))
		hi := int(math.Round(float64(i+1) * ratio))
		if hi > len(samples) {
			hi = len(samples)
		}
		if lo >= hi {
			// Upsampling repeats the nearest preceding sample.
			if lo >= len(samples) {
				lo = len(samples) - 1
			}
			out[i] = samples[lo]
			continue
		}

		var sum float64
		for _, s := range samples[lo:hi] {
			sum += float64(s)
		}
		out[i] = float32(sum / float64(hi-lo))
	}
	return out, nil
}
