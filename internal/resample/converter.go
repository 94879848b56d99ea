package resample

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Method names accepted by New.
const (
	MethodAverage = "average"
	MethodSinc    = "sinc"
)

// Converter turns capture-rate chunks into model-rate chunks.
type Converter interface {
	Convert(chunk []float32) ([]float32, error)
	Reset()
	InputRate() int
}

// New builds a Converter for the named method.
func New(method string, inputRate, outputRate int) (Converter, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("%w: input=%d output=%d", ErrInvalidRate, inputRate, outputRate)
	}

	switch method {
	case "", MethodAverage:
		return &averageConverter{in: inputRate, out: outputRate}, nil
	case MethodSinc:
		return newSincConverter(inputRate, outputRate)
	default:
		return nil, fmt.Errorf("unknown resample method %q", method)
	}
}

type averageConverter struct {
	in, out int
}

func (c *averageConverter) Convert(chunk []float32) ([]float32, error) {
	return Resample(chunk, c.in, c.out)
}

func (c *averageConverter) Reset() {}

func (c *averageConverter) InputRate() int { return c.in }

// sincConverter keeps filter state across chunks, so Reset must be called
// whenever the capture stream restarts.
type sincConverter struct {
	in, out   int
	resampler resampling.Resampler
	scratch   []float64
}

func newSincConverter(inputRate, outputRate int) (*sincConverter, error) {
	c := &sincConverter{in: inputRate, out: outputRate}
	if inputRate == outputRate {
		return c, nil
	}
	r, err := newResampler(inputRate, outputRate)
	if err != nil {
		return nil, err
	}
	c.resampler = r
	return c, nil
}

func newResampler(inputRate, outputRate int) (resampling.Resampler, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create sinc resampler: %w", err)
	}
	return r, nil
}

func (c *sincConverter) Convert(chunk []float32) ([]float32, error) {
	if c.resampler == nil {
		return chunk, nil
	}

	if cap(c.scratch) < len(chunk) {
		c.scratch = make([]float64, len(chunk))
	}
	in := c.scratch[:len(chunk)]
	for i, s := range chunk {
		in[i] = float64(s)
	}

	out, err := c.resampler.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	converted := make([]float32, len(out))
	for i, s := range out {
		converted[i] = float32(s)
	}
	return converted, nil
}

// Reset clears the filter history so a new capture starts from silence.
func (c *sincConverter) Reset() {
	if c.resampler != nil {
		c.resampler.Reset()
	}
}

func (c *sincConverter) InputRate() int { return c.in }
