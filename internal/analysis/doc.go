// Package analysis characterises recorded time courses.
//
//   - [Describe]: extremes, time-weighted mean and final value of a series
//   - [Crossings]: upward threshold crossings, interpolated in time
//   - [Spectrum] and [DominantPeriod]: power spectrum of a resampled series
//   - [NewPhasePortrait]: one variable against another
//
// # Oscillation Detection
//
// A sustained oscillation shows up as a spectral peak away from zero
// frequency:
//
//	period, ok := analysis.DominantPeriod(run.Times, column)
//	if ok {
//	    // column oscillates with the given period
//	}
package analysis
