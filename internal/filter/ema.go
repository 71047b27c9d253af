package filter

import "time"

// Smoothing factors used by the orientation engine. Values closer to 0 add
// inertia; rotation-vector input is clean enough for the high factor.
const (
	LowResponsiveness  = 0.05
	HighResponsiveness = 0.8
)

// EMA is a single-pole exponential moving average.
//
// The factor is not validated: values outside (0,1] give degenerate output
// rather than an error.
//
// Not safe for concurrent use.
type EMA struct {
	factor float64
	value  float64
}

func NewEMA(factor, initial float64) *EMA {
	return &EMA{factor: factor, value: initial}
}

// Push blends sample into the state and returns the new state.
func (f *EMA) Push(sample float64) float64 {
	f.value += f.factor * (sample - f.value)
	return f.value
}

func (f *EMA) Reset(v float64) { f.value = v }

func (f *EMA) Value() float64 { return f.value }

// SetFactor changes the blend coefficient and keeps the current state.
func (f *EMA) SetFactor(factor float64) { f.factor = factor }

func (f *EMA) Factor() float64 { return f.factor }

// FactorFor returns dt/(t+dt), the factor of a filter with time constant t
// sampled every dt.
func FactorFor(dt, timeConstant time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	if timeConstant < 0 {
		timeConstant = 0
	}
	return dt.Seconds() / (timeConstant.Seconds() + dt.Seconds())
}
