package sim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/odemodel"
)

// Ensemble runs independent instances over one shared model concurrently.
type Ensemble struct {
	model *odemodel.Model
	runs  []Settings
	// Limit caps the number of concurrent runs; zero means no cap.
	Limit int
	// ContinueOnError keeps the other members running when one fails.
	// Failures are still reported per outcome.
	ContinueOnError bool
	// Metrics, when set, supplies fresh metrics for every member.
	Metrics func() []Metric
}

// RunOutcome is the result of one ensemble member.
type RunOutcome struct {
	Settings Settings
	Result   *Result
	Store    *diag.Store
	Err      error
}

func NewEnsemble(model *odemodel.Model, runs ...Settings) *Ensemble {
	return &Ensemble{model: model, runs: runs}
}

// prepare builds every matrix the runs need before the model is shared, so
// no instance mutates it.
func (e *Ensemble) prepare(store *diag.Store) error {
	var sensParams []string
	sensSet := false
	for _, s := range e.runs {
		if s.UseJacobian && !e.model.HasJacobian() {
			_, _ = e.model.ConstructJacobian()
		}
		if !s.sensitivityEnabled() {
			continue
		}
		if sensSet && !equalStrings(sensParams, s.SensParameters) {
			return fmt.Errorf("%w: ensemble runs must share sensitivity parameters", ErrSettings)
		}
		sensParams, sensSet = s.SensParameters, true
	}
	if sensSet {
		if _, err := prepareSensitivity(e.model, sensParams, store, false); err != nil {
			return err
		}
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Run integrates every member and returns all outcomes together with the
// first error. Unless ContinueOnError is set, a failing member cancels the
// members still running.
func (e *Ensemble) Run(ctx context.Context) ([]RunOutcome, error) {
	if err := e.prepare(e.model.Store()); err != nil {
		return nil, err
	}
	out := make([]RunOutcome, len(e.runs))
	g, ctx := errgroup.WithContext(ctx)
	if e.Limit > 0 {
		g.SetLimit(e.Limit)
	}
	for i, settings := range e.runs {
		out[i].Settings = settings
		g.Go(func() error {
			store := diag.NewStore()
			out[i].Store = store
			inst, err := newInstance(e.model, settings, store, true)
			if err != nil {
				out[i].Err = err
				return e.groupErr(err)
			}
			defer inst.Close()
			if e.Metrics != nil {
				for _, m := range e.Metrics() {
					inst.AddMetric(m)
				}
			}
			err = inst.Integrate(ctx)
			out[i].Result, out[i].Err = inst.Result(), err
			return e.groupErr(err)
		})
	}
	return out, g.Wait()
}

func (e *Ensemble) groupErr(err error) error {
	if e.ContinueOnError {
		return nil
	}
	return err
}
