package sim

import "fmt"

// EventRecord notes one event application.
type EventRecord struct {
	ID   string
	Time float64
}

// Result is the time course of a run: one row of every variable per output
// time, plus sensitivity snapshots when enabled.
type Result struct {
	Names  []string
	Times  []float64
	Values [][]float64
	// Sensitivities[k][i][j] is d y_i / d p_j at Times[k].
	Sensitivities [][][]float64
	SensNames     []string

	Events  []EventRecord
	Metrics map[string]float64
}

func (r *Result) record(t float64, values []float64, sens [][]float64) {
	r.Times = append(r.Times, t)
	r.Values = append(r.Values, append([]float64(nil), values...))
	if sens != nil {
		r.Sensitivities = append(r.Sensitivities, cloneMatrix(sens))
	}
}

// Column returns the time course of one variable.
func (r *Result) Column(name string) ([]float64, error) {
	idx := -1
	for i, n := range r.Names {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	col := make([]float64, len(r.Values))
	for k, row := range r.Values {
		col[k] = row[idx]
	}
	return col, nil
}

// Final returns the last recorded row.
func (r *Result) Final() []float64 {
	if len(r.Values) == 0 {
		return nil
	}
	return r.Values[len(r.Values)-1]
}
