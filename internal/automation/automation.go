package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rnsim/internal/config"
	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/network"
	"github.com/san-kum/rnsim/internal/odemodel"
	"github.com/san-kum/rnsim/internal/reduce"
	"github.com/san-kum/rnsim/internal/sim"
)

// LoadModel reads a network document and assembles its ODE model.
// Diagnostics go to store.
func LoadModel(path string, store *diag.Store) (*odemodel.Model, error) {
	doc, err := network.Load(path)
	if err != nil {
		return nil, err
	}
	rm, err := reduce.Reduce(doc, store)
	if err != nil {
		return nil, err
	}
	return odemodel.Build(rm, store)
}

func withOverrides(base sim.Settings, extra map[string]float64) sim.Settings {
	s := base
	s.Overrides = make(map[string]float64, len(base.Overrides)+len(extra))
	for k, v := range base.Overrides {
		s.Overrides[k] = v
	}
	for k, v := range extra {
		s.Overrides[k] = v
	}
	return s
}

// Sweep runs one time course per value of param concurrently. Members
// fail independently.
func Sweep(ctx context.Context, model *odemodel.Model, base sim.Settings, param string, values []float64, limit int) ([]sim.RunOutcome, error) {
	if _, ok := model.Lookup(param); !ok {
		return nil, fmt.Errorf("%w: %s", sim.ErrUnknownVariable, param)
	}
	runs := make([]sim.Settings, len(values))
	for i, v := range values {
		runs[i] = withOverrides(base, map[string]float64{param: v})
	}
	ens := sim.NewEnsemble(model, runs...)
	ens.Limit = limit
	ens.ContinueOnError = true
	out, err := ens.Run(ctx)
	if err != nil {
		return out, err
	}
	return out, ctx.Err()
}

// MonteCarloConfig perturbs the initial values of Variables uniformly
// within a relative Spread of their nominal values.
type MonteCarloConfig struct {
	Variables []string
	Spread    float64
	Trials    int
	Seed      int64
	Limit     int
}

type MonteCarloTrial struct {
	ID        int
	Overrides map[string]float64
	Final     []float64
	Err       error
}

// Summary describes the final value of one variable across trials.
type Summary struct {
	Mean, StdDev, Min, Max float64
}

type MonteCarloResult struct {
	Names  []string
	Trials []MonteCarloTrial
	Stats  map[string]Summary
	Failed int
}

func RunMonteCarlo(ctx context.Context, model *odemodel.Model, base sim.Settings, cfg MonteCarloConfig) (*MonteCarloResult, error) {
	if cfg.Trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be positive", sim.ErrSettings)
	}
	if cfg.Spread < 0 {
		return nil, fmt.Errorf("%w: spread must not be negative", sim.ErrSettings)
	}
	nominal, err := nominalValues(model, base, cfg.Variables)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	res := &MonteCarloResult{Names: model.Names(), Trials: make([]MonteCarloTrial, cfg.Trials)}
	runs := make([]sim.Settings, cfg.Trials)
	for trial := range runs {
		overrides := make(map[string]float64, len(cfg.Variables))
		// draw in variable order so a seed reproduces a run
		for _, name := range cfg.Variables {
			overrides[name] = nominal[name] * (1 + (rng.Float64()-0.5)*2*cfg.Spread)
		}
		res.Trials[trial] = MonteCarloTrial{ID: trial, Overrides: overrides}
		runs[trial] = withOverrides(base, overrides)
	}

	ens := sim.NewEnsemble(model, runs...)
	ens.Limit = cfg.Limit
	ens.ContinueOnError = true
	outcomes, err := ens.Run(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, o := range outcomes {
		res.Trials[i].Err = o.Err
		if o.Err != nil {
			res.Failed++
			continue
		}
		res.Trials[i].Final = append([]float64(nil), o.Result.Final()...)
	}
	res.Stats = summarize(res)
	logrus.Debugf("automation: monte carlo over %v: %d trials, %d failed", cfg.Variables, cfg.Trials, res.Failed)
	return res, nil
}

// nominalValues evaluates the initial values of names under base.
func nominalValues(model *odemodel.Model, base sim.Settings, names []string) (map[string]float64, error) {
	probe, err := sim.New(model, base, nil)
	if err != nil {
		return nil, err
	}
	defer probe.Close()
	out := make(map[string]float64, len(names))
	for _, name := range names {
		v, err := probe.Value(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func summarize(res *MonteCarloResult) map[string]Summary {
	stats := make(map[string]Summary, len(res.Names))
	col := make([]float64, 0, len(res.Trials))
	for j, name := range res.Names {
		col = col[:0]
		for _, tr := range res.Trials {
			if tr.Err == nil && !math.IsNaN(tr.Final[j]) {
				col = append(col, tr.Final[j])
			}
		}
		if len(col) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(col, nil)
		if len(col) == 1 {
			std = 0
		}
		stats[name] = Summary{Mean: mean, StdDev: std, Min: floats.Min(col), Max: floats.Max(col)}
	}
	return stats
}

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`

	dir string
}

// ScenarioStep is a single run of a scenario. Model paths are relative to
// the scenario file.
type ScenarioStep struct {
	Name     string             `yaml:"name"`
	Model    string             `yaml:"model"`
	Preset   string             `yaml:"preset"`
	Method   string             `yaml:"method"`
	EndTime  float64            `yaml:"end_time"`
	Steps    int                `yaml:"steps"`
	Set      map[string]float64 `yaml:"set"`
	Adjoint  bool               `yaml:"adjoint"`
	Weights  map[string]float64 `yaml:"weights"`
	HaltOnSS bool               `yaml:"halt_on_steady_state"`
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Step     ScenarioStep
	ModelID  string
	Settings sim.Settings
	Result   *sim.Result
	// Gradient holds adjoint sensitivities by parameter name.
	Gradient map[string]float64
	Store    *diag.Store
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	scenario.dir = filepath.Dir(path)
	return &scenario, nil
}

func (sc *Scenario) settings(step ScenarioStep) (sim.Settings, error) {
	cfg := config.DefaultConfig()
	if step.Preset != "" {
		p, err := config.GetPreset(step.Preset)
		if err != nil {
			return sim.Settings{}, err
		}
		cfg = p
	}
	s := cfg.Settings()
	if step.Method != "" {
		s.Method = step.Method
	}
	if step.EndTime > 0 {
		s.EndTime = step.EndTime
	}
	if step.Steps > 0 {
		s.Steps = step.Steps
	}
	s.Adjoint = s.Adjoint || step.Adjoint
	s.HaltOnSteadyState = s.HaltOnSteadyState || step.HaltOnSS
	s.AdjointWeights = step.Weights
	return withOverrides(s, step.Set), nil
}

func (sc *Scenario) modelPath(p string) string {
	if filepath.IsAbs(p) || sc.dir == "" {
		return p
	}
	return filepath.Join(sc.dir, p)
}

// RunScenario executes the steps in order and stops at the first failing
// one, returning the results so far.
func RunScenario(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		logrus.Infof("scenario %s: step %d/%d: %s", sc.Name, i+1, len(sc.Steps), step.Model)
		r, err := sc.runStep(ctx, step)
		if r != nil {
			results = append(results, *r)
		}
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return results, nil
}

func (sc *Scenario) runStep(ctx context.Context, step ScenarioStep) (*StepResult, error) {
	settings, err := sc.settings(step)
	if err != nil {
		return nil, err
	}
	store := diag.NewStore()
	r := &StepResult{Step: step, Settings: settings, Store: store}
	m, err := LoadModel(sc.modelPath(step.Model), store)
	if err != nil {
		return r, err
	}
	r.ModelID = m.ID

	inst, err := sim.New(m, settings, store)
	if err != nil {
		return r, err
	}
	defer inst.Close()
	err = inst.Integrate(ctx)
	r.Result = inst.Result()
	if err != nil || !settings.Adjoint {
		return r, err
	}

	if err := inst.ResetAdjointPhase(); err != nil {
		return r, err
	}
	if err := inst.Integrate(ctx); err != nil {
		return r, err
	}
	grad, err := inst.AdjointSensitivities()
	if err != nil {
		return r, err
	}
	r.Gradient = make(map[string]float64, len(grad))
	for j, v := range grad {
		r.Gradient[r.Result.SensNames[j]] = v
	}
	return r, nil
}

// SortedStats returns the summary names in order.
func (r *MonteCarloResult) SortedStats() []string {
	names := make([]string, 0, len(r.Stats))
	for name := range r.Stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
