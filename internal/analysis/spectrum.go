package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Spectrum resamples a series onto n even points, removes its mean and
// returns the one-sided power spectrum with the matching frequencies in
// cycles per time unit. Index 0 is the zero frequency.
func Spectrum(times, values []float64, n int) (freqs, power []float64, err error) {
	if len(times) < 2 || len(times) != len(values) || n < 2 {
		return nil, nil, ErrShortSeries
	}
	seq := resample(times, values, n)
	floats.AddConst(-stat.Mean(seq, nil), seq)

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)
	dt := (times[len(times)-1] - times[0]) / float64(n-1)
	freqs = make([]float64, len(coeff))
	power = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i) / dt
		a := cmplx.Abs(c)
		power[i] = a * a
	}
	return freqs, power, nil
}

// DominantPeriod returns the period of the strongest non-zero frequency.
// ok is false for flat or too short series.
func DominantPeriod(times, values []float64) (period float64, ok bool) {
	n := len(times)
	if n < 4 {
		return 0, false
	}
	freqs, power, err := Spectrum(times, values, n)
	if err != nil || floats.Max(power) == 0 {
		return 0, false
	}
	best := floats.MaxIdx(power[1:]) + 1
	if freqs[best] == 0 {
		return 0, false
	}
	return 1 / freqs[best], true
}
