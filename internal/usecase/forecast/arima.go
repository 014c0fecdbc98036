package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pantrylens/backend/internal/domain"
)

// Parameter grid for the AR and MA coefficients
const (
	gridSteps = 19
	gridStep  = 0.05
)

// Model is an ARIMA(1,1,1) fit with drift. The differenced series follows
// (y[t]-Drift) = Phi*(y[t-1]-Drift) + e[t] + Theta*e[t-1].
type Model struct {
	Phi       float64   `json:"phi"`
	Theta     float64   `json:"theta"`
	Drift     float64   `json:"drift"`
	Sigma2    float64   `json:"sigma2"`
	Start     time.Time `json:"start"`
	Levels    []float64 `json:"levels"`
	LastResid float64   `json:"lastResid"`
}

// Fit estimates a model by conditional sum of squares over a fixed grid.
// Ties keep the smaller coefficients, starting from the pure drift model.
func Fit(s Series) (*Model, error) {
	n := len(s.Values)
	if n < 2 {
		return nil, fmt.Errorf("%w: series has %d points, need at least 2", domain.ErrForecastFault, n)
	}
	for _, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: series contains non-finite values", domain.ErrForecastFault)
		}
	}

	y := make([]float64, n-1)
	var drift float64
	for i := 1; i < n; i++ {
		y[i-1] = s.Values[i] - s.Values[i-1]
		drift += y[i-1]
	}
	drift /= float64(len(y))

	bestPhi, bestTheta := 0.0, 0.0
	bestCSS, _ := css(y, drift, 0, 0)
	for i := -gridSteps; i <= gridSteps; i++ {
		for j := -gridSteps; j <= gridSteps; j++ {
			phi, theta := float64(i)*gridStep, float64(j)*gridStep
			sum, _ := css(y, drift, phi, theta)
			if sum < bestCSS-1e-12 {
				bestCSS, bestPhi, bestTheta = sum, phi, theta
			}
		}
	}

	_, last := css(y, drift, bestPhi, bestTheta)
	levels := make([]float64, n)
	copy(levels, s.Values)
	return &Model{
		Phi:       bestPhi,
		Theta:     bestTheta,
		Drift:     drift,
		Sigma2:    bestCSS / float64(len(y)),
		Start:     s.Start,
		Levels:    levels,
		LastResid: last,
	}, nil
}

// css returns the conditional sum of squared residuals and the final
// residual. The first residual is conditioned to zero.
func css(y []float64, drift, phi, theta float64) (float64, float64) {
	var sum, prev float64
	for t := 1; t < len(y); t++ {
		e := (y[t] - drift) - phi*(y[t-1]-drift) - theta*prev
		sum += e * e
		prev = e
	}
	return sum, prev
}

// At returns the cumulative consumption on day index d. Days inside the
// training span return the observed value; later days are projected with
// non-negative daily increments.
func (m *Model) At(d int) float64 {
	n := len(m.Levels)
	if d < 0 {
		return m.Levels[0]
	}
	if d < n {
		return m.Levels[d]
	}

	level := m.Levels[n-1]
	prevDiff := 0.0
	if n > 1 {
		prevDiff = m.Levels[n-1] - m.Levels[n-2]
	}
	resid := m.LastResid
	for step := n; step <= d; step++ {
		next := m.Drift + m.Phi*(prevDiff-m.Drift) + m.Theta*resid
		resid = 0
		prevDiff = next
		level += math.Max(next, 0)
	}
	return level
}

// Predict returns the cumulative consumption projected for the day of t
func (m *Model) Predict(t time.Time) float64 {
	return m.At(dayIndex(m.Start, t))
}

// Marshal serializes the model for a ModelStore
func (m *Model) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal restores a model written by Marshal
func Unmarshal(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", domain.ErrForecastFault, err)
	}
	if len(m.Levels) == 0 {
		return nil, fmt.Errorf("%w: model has no levels", domain.ErrForecastFault)
	}
	return &m, nil
}
