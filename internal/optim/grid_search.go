package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/rnsim/internal/odemodel"
	"github.com/san-kum/rnsim/internal/sim"
)

var ErrNoCandidate = errors.New("optim: no grid point produced a finite objective")

// Objective scores a finished run; lower is better.
type Objective func(res *sim.Result) (float64, error)

// MetricObjective scores a run by one of its recorded metrics.
func MetricObjective(name string) Objective {
	return func(res *sim.Result) (float64, error) {
		v, ok := res.Metrics[name]
		if !ok {
			return 0, fmt.Errorf("optim: run has no metric %s", name)
		}
		return v, nil
	}
}

// TargetObjective scores a run by the squared distance of the final value
// of variable from target.
func TargetObjective(variable string, target float64) Objective {
	return func(res *sim.Result) (float64, error) {
		col, err := res.Column(variable)
		if err != nil {
			return 0, err
		}
		d := col[len(col)-1] - target
		return d * d, nil
	}
}

// Point is one evaluated grid point.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// GridSearch evaluates every combination of parameter values as an
// initial-value override.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Limit caps concurrent runs; zero means no cap.
	Limit int
	// Metrics supplies per-run metrics for MetricObjective.
	Metrics func() []sim.Metric
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Points enumerates the grid, the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}
	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val
		g.enumerate(depth+1, newParams, out)
	}
}

// Search runs the whole grid as one ensemble and returns the point with the
// lowest objective, together with every evaluated point. Failed runs and
// non-finite objectives never win.
func (g *GridSearch) Search(ctx context.Context, model *odemodel.Model, base sim.Settings, objective Objective) (*Point, []Point, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}
	for _, name := range g.paramNames {
		if _, ok := model.Lookup(name); !ok {
			return nil, nil, fmt.Errorf("%w: %s", sim.ErrUnknownVariable, name)
		}
	}

	grid := g.Points()
	runs := make([]sim.Settings, len(grid))
	for i, params := range grid {
		s := base
		s.Overrides = make(map[string]float64, len(base.Overrides)+len(params))
		for k, v := range base.Overrides {
			s.Overrides[k] = v
		}
		for k, v := range params {
			s.Overrides[k] = v
		}
		runs[i] = s
	}

	ens := sim.NewEnsemble(model, runs...)
	ens.Limit = g.Limit
	ens.ContinueOnError = true
	ens.Metrics = g.Metrics
	outcomes, err := ens.Run(ctx)
	if outcomes == nil {
		return nil, nil, err
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	points := make([]Point, len(grid))
	best := -1
	for i, o := range outcomes {
		points[i] = Point{Params: grid[i], Value: math.Inf(1), Err: o.Err}
		if o.Err != nil {
			continue
		}
		v, err := objective(o.Result)
		if err != nil {
			points[i].Err = err
			continue
		}
		points[i].Value = v
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if best < 0 || v < points[best].Value {
			best = i
		}
	}
	if best < 0 {
		return nil, points, ErrNoCandidate
	}
	return &points[best], points, nil
}
