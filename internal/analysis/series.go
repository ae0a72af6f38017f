package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

var ErrShortSeries = errors.New("analysis: series needs at least 2 samples")

// Stats summarises one series.
type Stats struct {
	Min, Max   float64
	TMin, TMax float64
	// Mean is the trapezoidal time average.
	Mean  float64
	Final float64
}

func Describe(times, values []float64) (Stats, error) {
	if len(times) < 2 || len(times) != len(values) {
		return Stats{}, ErrShortSeries
	}
	lo, hi := floats.MinIdx(values), floats.MaxIdx(values)
	st := Stats{
		Min:   values[lo],
		Max:   values[hi],
		TMin:  times[lo],
		TMax:  times[hi],
		Final: values[len(values)-1],
	}
	span := times[len(times)-1] - times[0]
	if span == 0 {
		st.Mean = floats.Sum(values) / float64(len(values))
		return st, nil
	}
	area := 0.0
	for i := 1; i < len(times); i++ {
		area += 0.5 * (values[i] + values[i-1]) * (times[i] - times[i-1])
	}
	st.Mean = area / span
	return st, nil
}

// Crossings returns the times at which values rises through threshold,
// interpolated linearly between samples.
func Crossings(times, values []float64, threshold float64) []float64 {
	var out []float64
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if !(prev < threshold && cur >= threshold) {
			continue
		}
		frac := (threshold - prev) / (cur - prev)
		if math.IsNaN(frac) || math.IsInf(frac, 0) {
			frac = 0.5
		}
		out = append(out, times[i-1]+frac*(times[i]-times[i-1]))
	}
	return out
}

// resample interpolates values linearly onto n evenly spaced times.
func resample(times, values []float64, n int) []float64 {
	out := make([]float64, n)
	t0, t1 := times[0], times[len(times)-1]
	j := 0
	for i := range out {
		t := t0 + (t1-t0)*float64(i)/float64(n-1)
		for j < len(times)-2 && times[j+1] < t {
			j++
		}
		dt := times[j+1] - times[j]
		if dt == 0 {
			out[i] = values[j]
			continue
		}
		w := (t - times[j]) / dt
		out[i] = values[j] + w*(values[j+1]-values[j])
	}
	return out
}
