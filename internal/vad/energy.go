package vad

import "math"

// EnergyScorer maps window RMS linearly between Floor (0) and Ceiling (1).
type EnergyScorer struct {
	Floor   float64
	Ceiling float64
}

// NewEnergyScorer returns a scorer with the given RMS bounds.
func NewEnergyScorer(floor, ceiling float64) *EnergyScorer {
	if ceiling <= floor {
		ceiling = floor + 1e-6
	}
	return &EnergyScorer{Floor: floor, Ceiling: ceiling}
}

func (s *EnergyScorer) Score(window []float32) float64 {
	level := rms(window)
	switch {
	case level <= s.Floor:
		return 0
	case level >= s.Ceiling:
		return 1
	default:
		return (level - s.Floor) / (s.Ceiling - s.Floor)
	}
}

// Reset is a no-op; the scorer keeps no state between windows.
func (s *EnergyScorer) Reset() {}

func rms(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(window)))
}
