package sim

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/rnsim/internal/compute"
	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/expr"
	"github.com/san-kum/rnsim/internal/integrators"
	"github.com/san-kum/rnsim/internal/odemodel"
)

type compiledEvent struct {
	id      string
	trigger compute.Program
	delay   compute.Program
	targets []int
	maths   []compute.Program
}

type pendingEvent struct {
	id      string
	at      float64
	targets []int
	values  []float64
}

// Instance runs one simulation over a shared model. It is not safe for
// concurrent use; run independent instances for parallel work.
type Instance struct {
	model    *odemodel.Model
	settings Settings
	store    *diag.Store
	shared   bool

	rs      *RunState
	state   State
	phase   Phase
	closed  bool
	halted  bool
	applied bool
	reinit  bool
	err     error

	outputs []float64
	next    int
	step    int

	initial     []compute.Program
	rates       []compute.Program
	assigns     []compute.Program
	assignOrder []int
	jac         [][]compute.Program
	sens        [][]compute.Program
	sensIdx     []int
	initSens    [][]compute.Program
	events      []compiledEvent
	pending     []pendingEvent

	work   []float64
	fbuf   []float64
	ybuf   []float64
	jacBuf [][]float64
	parBuf [][]float64
	fd     integrators.FiniteDifference

	engine integrators.Engine
	s0     [][]float64

	traj    trajectory
	adjoint integrators.Engine

	result  *Result
	metrics []Metric
}

// New binds an instance to model and evaluates its initial values. Missing
// Jacobian or sensitivity matrices requested by settings are constructed
// on the model.
func New(model *odemodel.Model, settings Settings, store *diag.Store) (*Instance, error) {
	return newInstance(model, settings, store, false)
}

func newInstance(model *odemodel.Model, settings Settings, store *diag.Store, shared bool) (*Instance, error) {
	if store == nil {
		store = diag.NewStore()
	}
	s := &Instance{model: model, store: store, shared: shared}
	if model.NAlg > 0 {
		store.Record(diag.Error, diag.CodeAlgebraicRules,
			"%s: %d algebraic placeholders cannot be integrated as pure ODEs", model.ID, model.NAlg)
		return nil, fmt.Errorf("%w: %d placeholders", ErrAlgebraic, model.NAlg)
	}
	if err := s.configure(settings); err != nil {
		return nil, err
	}
	if err := s.reset(); err != nil {
		return nil, err
	}
	logrus.Debugf("sim: %s: instance ready (%d equations, %d outputs, method %s, backend %s)",
		model.ID, model.NEq, len(s.outputs), settings.Method, settings.Backend)
	return s, nil
}

func (s *Instance) configure(settings Settings) error {
	m := s.model
	if err := settings.Validate(); err != nil {
		s.store.Record(diag.Error, diag.CodeSettings, "%v", err)
		return err
	}
	if settings.Method == "" {
		settings.Method = "rk45"
	}
	if _, err := integrators.New(settings.Method); err != nil {
		s.store.Record(diag.Error, diag.CodeSettings, "%v", err)
		return fmt.Errorf("%w: %w", ErrSettings, err)
	}
	backend, err := compute.ByName(settings.Backend)
	if err != nil {
		s.store.Record(diag.Error, diag.CodeSettings, "%v", err)
		return fmt.Errorf("%w: %w", ErrSettings, err)
	}
	if err := s.checkOverrides(settings.Overrides); err != nil {
		return err
	}

	s.settings = settings
	s.outputs = settings.Outputs()
	s.engine, s.adjoint = nil, nil

	if s.initial, err = compute.CompileAll(backend, m.Initial); err != nil {
		return s.compileFailed(err)
	}
	if s.rates, err = compute.CompileAll(backend, m.Rates); err != nil {
		return s.compileFailed(err)
	}
	if s.assigns, err = compute.CompileAll(backend, m.Assignments); err != nil {
		return s.compileFailed(err)
	}
	s.assignOrder = s.assignOrder[:0]
	for _, i := range m.InitialOrder {
		if m.Type(i) == odemodel.Assigned {
			s.assignOrder = append(s.assignOrder, i)
		}
	}
	if s.events, err = compileEvents(backend, m.Events); err != nil {
		return s.compileFailed(err)
	}

	s.jac = nil
	if settings.UseJacobian {
		if !m.HasJacobian() && !s.shared {
			// a failed construction leaves finite differences in the engine
			_, _ = m.ConstructJacobian()
		}
		if m.HasJacobian() {
			if s.jac, err = compute.CompileMatrix(backend, m.Jacobian); err != nil {
				return s.compileFailed(err)
			}
		}
	}

	s.sens, s.initSens, s.sensIdx = nil, nil, nil
	if settings.sensitivityEnabled() {
		idx, err := prepareSensitivity(m, settings.SensParameters, s.store, s.shared)
		if err != nil {
			return err
		}
		s.sensIdx = idx
		if s.sens, err = compute.CompileMatrix(backend, m.Sensitivity); err != nil {
			return s.compileFailed(err)
		}
		if s.initSens, err = compute.CompileMatrix(backend, m.InitialSensitivity); err != nil {
			return s.compileFailed(err)
		}
	}

	total, neq := m.Total(), m.NEq
	s.rs = newRunState(total, len(m.Events), neq, len(s.sensIdx))
	s.work = make([]float64, total)
	s.fbuf = make([]float64, neq)
	s.ybuf = make([]float64, neq)
	s.jacBuf = newMatrix(neq, neq)
	if len(s.sensIdx) > 0 {
		s.parBuf = newMatrix(neq, len(s.sensIdx))
		s.s0 = newMatrix(neq, len(s.sensIdx))
	}
	return nil
}

func (s *Instance) compileFailed(err error) error {
	s.store.Record(diag.Error, diag.CodeSettings, "%s: %v", s.model.ID, err)
	return err
}

func compileEvents(b compute.Backend, events []odemodel.Event) ([]compiledEvent, error) {
	out := make([]compiledEvent, len(events))
	for i, ev := range events {
		ce := compiledEvent{id: ev.ID}
		var err error
		if ce.trigger, err = b.Compile(ev.Trigger); err != nil {
			return nil, err
		}
		if ev.Delay != nil {
			if ce.delay, err = b.Compile(ev.Delay); err != nil {
				return nil, err
			}
		}
		for _, a := range ev.Assignments {
			p, err := b.Compile(a.Math)
			if err != nil {
				return nil, err
			}
			ce.targets = append(ce.targets, a.Index)
			ce.maths = append(ce.maths, p)
		}
		out[i] = ce
	}
	return out, nil
}

// prepareSensitivity resolves parameter names and makes sure the model
// carries the matching sensitivity matrix.
func prepareSensitivity(m *odemodel.Model, names []string, store *diag.Store, shared bool) ([]int, error) {
	var idx []int
	if len(names) == 0 {
		lo, hi := m.ConstantRange()
		for i := lo; i < hi; i++ {
			idx = append(idx, i)
		}
	}
	for _, name := range names {
		i, ok := m.Lookup(name)
		if !ok {
			store.Record(diag.Error, diag.CodeSettings, "sensitivity parameter %s is not in the model", name)
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
		idx = append(idx, i)
	}
	if m.HasSensitivity() && equalInts(m.SensIndices, idx) {
		return idx, nil
	}
	if shared {
		store.Record(diag.Error, diag.CodeSettings, "shared model has no sensitivity matrix for the requested parameters")
		return nil, fmt.Errorf("%w: sensitivity matrix not prepared", ErrSettings)
	}
	if len(idx) == 0 {
		store.Record(diag.Warning, diag.CodeSettings, "%s: no constants to differentiate by", m.ID)
		return nil, fmt.Errorf("%w: no sensitivity parameters", ErrSettings)
	}
	if _, err := m.ConstructSensitivity(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func equalInts(a, b []int) bool {
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

func (s *Instance) checkOverrides(overrides map[string]float64) error {
	for name := range overrides {
		i, ok := s.model.Lookup(name)
		if !ok {
			s.store.Record(diag.Error, diag.CodeSettings, "override for unknown variable %s", name)
			return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
		if s.model.Type(i) == odemodel.Assigned {
			s.store.Record(diag.Error, diag.CodeSettings, "override for assigned variable %s", name)
			return fmt.Errorf("%w: %s", ErrReadOnly, name)
		}
	}
	return nil
}

func (s *Instance) reset() error {
	m, rs := s.model, s.rs
	t0 := s.outputs[0]
	for _, i := range m.InitialOrder {
		if v, ok := s.settings.Overrides[m.Name(i)]; ok {
			rs.Values[i] = v
			continue
		}
		rs.Values[i] = s.initial[i](rs.Values, t0)
	}
	rs.Time = t0
	rs.AssignmentsCurrent = true
	rs.SteadyState = false
	rs.Adjoint, rs.Quadrature = nil, nil
	for i, ev := range s.events {
		rs.Triggers[i] = expr.Truthy(ev.trigger(rs.Values, t0))
	}
	if rs.Sens != nil {
		compute.EvalMatrix(s.initSens, rs.Values, t0, s.s0)
		copyMatrix(rs.Sens, s.s0)
	}
	s.syncWork()

	s.phase = Forward
	s.adjoint = nil
	s.pending = nil
	s.halted, s.applied, s.reinit = false, false, false
	s.err = nil
	s.next, s.step = 1, 0

	s.result = &Result{Names: s.model.Names(), Metrics: map[string]float64{}}
	for _, i := range s.sensIdx {
		s.result.SensNames = append(s.result.SensNames, m.Name(i))
	}
	for _, mt := range s.metrics {
		mt.Reset()
	}
	s.traj.reset()
	s.recordRow()

	if s.engine != nil {
		if err := s.engine.Init(s.problem(), t0, rs.Values[:m.NEq]); err != nil {
			s.engine = nil
			return err
		}
	}
	s.state = Ready
	if len(s.outputs) < 2 {
		s.state = Completed
	}
	return nil
}

func (s *Instance) syncWork() { copy(s.work, s.rs.Values) }

func (s *Instance) evalAssignments(values []float64, t float64) {
	neq := s.model.NEq
	for _, i := range s.assignOrder {
		values[i] = s.assigns[i-neq](values, t)
	}
}

func (s *Instance) updateAssignments() {
	if s.rs.AssignmentsCurrent {
		return
	}
	s.evalAssignments(s.rs.Values, s.rs.Time)
	s.rs.AssignmentsCurrent = true
}

func (s *Instance) rhs(t float64, y, dydt []float64) {
	copy(s.work[:len(y)], y)
	s.evalAssignments(s.work, t)
	compute.EvalAll(s.rates, s.work, t, dydt)
}

func (s *Instance) jacobian(t float64, y, _ []float64, jac [][]float64) {
	copy(s.work[:len(y)], y)
	compute.EvalMatrix(s.jac, s.work, t, jac)
}

func (s *Instance) sensRHS(t float64, y []float64, out [][]float64) {
	copy(s.work[:len(y)], y)
	compute.EvalMatrix(s.sens, s.work, t, out)
}

func (s *Instance) problem() integrators.Problem {
	p := integrators.Problem{
		N:           s.model.NEq,
		RHS:         s.rhs,
		AbsTol:      s.settings.AbsTol,
		RelTol:      s.settings.RelTol,
		MaxSteps:    s.settings.MaxSteps,
		InitialStep: s.settings.InitialStep,
	}
	if s.jac != nil {
		p.Jacobian = s.jacobian
	}
	if s.rs.Sens != nil {
		p.NSens = len(s.sensIdx)
		p.SensRHS = s.sensRHS
		p.InitSens = s.rs.Sens
	}
	return p
}

func (s *Instance) ensureEngine() error {
	if s.engine != nil || s.model.NEq == 0 {
		return nil
	}
	e, err := integrators.New(s.settings.Method)
	if err != nil {
		return err
	}
	if err := e.Init(s.problem(), s.rs.Time, s.rs.Values[:s.model.NEq]); err != nil {
		return err
	}
	s.engine = e
	s.reinit = false
	return nil
}

func (s *Instance) canStep() bool {
	if s.closed || s.halted {
		return false
	}
	switch s.state {
	case Uninitialized, Completed, Failed:
		return false
	}
	return true
}

// IntegrateOneStep advances to the next output time, applying any event
// that fires on the way. It returns false when no step was taken.
func (s *Instance) IntegrateOneStep() bool {
	if !s.canStep() {
		return false
	}
	if s.phase == Backward {
		return s.adjointStep()
	}
	if err := s.ensureEngine(); err != nil {
		s.fail(err)
		return false
	}
	s.state = Stepping
	s.applied = false
	target := s.outputs[s.next]

	for len(s.pending) > 0 && s.pending[0].at <= target {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		if err := s.advance(ev.at); err != nil {
			s.fail(err)
			return false
		}
		s.applyChanges(ev.targets, ev.values)
		s.result.Events = append(s.result.Events, EventRecord{ID: ev.id, Time: ev.at})
		logrus.Debugf("sim: %s: delayed event %s applied at t=%g", s.model.ID, ev.id, ev.at)
	}
	if err := s.advance(target); err != nil {
		s.fail(err)
		return false
	}
	s.checkEvents()

	s.next++
	s.step++
	s.recordRow()
	switch {
	case s.next >= len(s.outputs):
		s.state = Completed
		logrus.Debugf("sim: %s: run %d completed at t=%g", s.model.ID, s.rs.Run, s.rs.Time)
	case s.applied:
		s.state = EventPending
		if s.settings.HaltOnEvent {
			s.halted = true
		}
	}
	return true
}

func (s *Instance) advance(to float64) error {
	rs, neq := s.rs, s.model.NEq
	if to == rs.Time {
		return nil
	}
	if neq == 0 {
		rs.Time = to
		rs.AssignmentsCurrent = false
		return nil
	}
	if s.reinit {
		if err := s.engine.Reinit(rs.Time, rs.Values[:neq]); err != nil {
			return err
		}
		s.reinit = false
	}

	if s.settings.Adjoint {
		// keep every internal step for the backward pass
		limit := s.settings.MaxSteps
		if limit <= 0 {
			limit = integrators.DefaultMaxSteps
		}
		for steps := 0; s.engine.Time() != to; steps++ {
			if steps >= limit {
				return fmt.Errorf("%w: %d steps before t=%g", integrators.ErrTooManySteps, steps, to)
			}
			t, err := s.engine.Step(to)
			if err != nil {
				return err
			}
			s.trajPoint(t, s.engine.Values())
		}
	} else if err := s.engine.IntegrateToEnd(to); err != nil {
		return err
	}

	copy(rs.Values[:neq], s.engine.Values())
	if rs.Sens != nil {
		copyMatrix(rs.Sens, s.engine.Sensitivities())
	}
	rs.Time = to
	rs.AssignmentsCurrent = false
	return nil
}

func (s *Instance) fail(err error) {
	s.state = Failed
	s.err = &StepError{Step: s.step, Time: s.rs.Time, Wrapped: err}
	s.store.Record(diag.Error, diag.CodeIntegration, "%s: %v", s.model.ID, s.err)
}

// checkEvents fires every event whose trigger rose since the last check.
// All assignment values come from one snapshot taken before any is applied.
func (s *Instance) checkEvents() {
	if len(s.events) == 0 {
		return
	}
	rs := s.rs
	s.updateAssignments()
	var firing []int
	for i, ev := range s.events {
		now := expr.Truthy(ev.trigger(rs.Values, rs.Time))
		if now && !rs.Triggers[i] {
			firing = append(firing, i)
		}
		rs.Triggers[i] = now
	}
	if len(firing) == 0 {
		return
	}

	snapshot := append([]float64(nil), rs.Values...)
	var targets []int
	var values []float64
	for _, i := range firing {
		ev := s.events[i]
		vals := make([]float64, len(ev.maths))
		for k, p := range ev.maths {
			vals[k] = p(snapshot, rs.Time)
		}
		if ev.delay != nil {
			if d := ev.delay(snapshot, rs.Time); d > 0 {
				s.schedule(pendingEvent{id: ev.id, at: rs.Time + d, targets: ev.targets, values: vals})
				logrus.Debugf("sim: %s: event %s triggered at t=%g, due at t=%g", s.model.ID, ev.id, rs.Time, rs.Time+d)
				continue
			}
		}
		targets = append(targets, ev.targets...)
		values = append(values, vals...)
		s.result.Events = append(s.result.Events, EventRecord{ID: ev.id, Time: rs.Time})
		logrus.Debugf("sim: %s: event %s fired at t=%g", s.model.ID, ev.id, rs.Time)
	}
	if len(targets) > 0 {
		s.applyChanges(targets, values)
	}
}

func (s *Instance) schedule(p pendingEvent) {
	i := sort.Search(len(s.pending), func(i int) bool { return s.pending[i].at > p.at })
	s.pending = append(s.pending, pendingEvent{})
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = p
}

func (s *Instance) applyChanges(targets []int, values []float64) {
	rs, neq := s.rs, s.model.NEq
	for k, idx := range targets {
		rs.Values[idx] = values[k]
		if idx < neq {
			s.reinit = true
		}
	}
	rs.AssignmentsCurrent = false
	s.applied = true
	s.syncWork()
	if s.settings.Adjoint {
		s.trajPoint(rs.Time, rs.Values[:neq])
	}
}

func (s *Instance) recordRow() {
	s.updateAssignments()
	var sens [][]float64
	if s.rs.Sens != nil {
		sens = s.rs.Sens
	}
	s.result.record(s.rs.Time, s.rs.Values, sens)
	for _, m := range s.metrics {
		m.Observe(s.rs.Time, s.rs.Values)
		s.result.Metrics[m.Name()] = m.Value()
	}
	if s.settings.Adjoint && len(s.result.Times) == 1 {
		s.trajPoint(s.rs.Time, s.rs.Values[:s.model.NEq])
	}
}

// TimeCourseCompleted reports whether the current phase has no steps left.
func (s *Instance) TimeCourseCompleted() bool {
	if s.phase == Backward {
		return s.next < 0
	}
	return s.halted || s.next >= len(s.outputs)
}

// Integrate steps until the time course completes, a halt condition holds,
// or ctx is done.
func (s *Instance) Integrate(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	for !s.TimeCourseCompleted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.IntegrateOneStep() {
			break
		}
		if s.phase == Forward && s.settings.HaltOnSteadyState {
			s.CheckSteadyState()
		}
	}
	if s.state == Failed {
		return s.err
	}
	return nil
}

// Reset rewinds to the initial values and starts the next run. The engine
// is kept and re-initialised.
func (s *Instance) Reset() error {
	if s.closed {
		return ErrClosed
	}
	if s.rs == nil {
		return fmt.Errorf("%w: instance is not configured", ErrSettings)
	}
	s.rs.Run++
	return s.reset()
}

// Set replaces the settings, recompiles, drops the engine and resets.
func (s *Instance) Set(settings Settings) error {
	if s.closed {
		return ErrClosed
	}
	run := 0
	if s.rs != nil {
		run = s.rs.Run + 1
	}
	if err := s.configure(settings); err != nil {
		s.state = Uninitialized
		return err
	}
	s.rs.Run = run
	return s.reset()
}

// Close releases the engines. The instance cannot be used afterwards.
func (s *Instance) Close() {
	s.engine, s.adjoint = nil, nil
	s.closed = true
	s.state = Uninitialized
	s.traj.reset()
}

func (s *Instance) Value(name string) (float64, error) {
	i, ok := s.model.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if s.model.Type(i) == odemodel.Assigned {
		s.updateAssignments()
	}
	return s.rs.Values[i], nil
}

// SetValue changes a differential or constant value mid-run.
func (s *Instance) SetValue(name string, v float64) error {
	if s.closed {
		return ErrClosed
	}
	i, ok := s.model.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if s.model.Type(i) == odemodel.Assigned {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	s.rs.Values[i] = v
	if i < s.model.NEq {
		s.reinit = true
	}
	s.rs.AssignmentsCurrent = false
	s.syncWork()
	return nil
}

// Values returns a copy of every current value in index order.
func (s *Instance) Values() []float64 {
	s.updateAssignments()
	return append([]float64(nil), s.rs.Values...)
}

func (s *Instance) Time() float64         { return s.rs.Time }
func (s *Instance) State() State          { return s.state }
func (s *Instance) Phase() Phase          { return s.phase }
func (s *Instance) Run() int              { return s.rs.Run }
func (s *Instance) Result() *Result       { return s.result }
func (s *Instance) Settings() Settings    { return s.settings }
func (s *Instance) Store() *diag.Store    { return s.store }

func (s *Instance) Model() *odemodel.Model { return s.model }

// Err returns the failure that moved the instance to Failed.
func (s *Instance) Err() error { return s.err }

// AddMetric registers an observer fed with every recorded row.
func (s *Instance) AddMetric(m Metric) {
	m.Reset()
	m.Observe(s.rs.Time, s.rs.Values)
	s.metrics = append(s.metrics, m)
}

// Sensitivity returns d y_i / d p_j for differential i and parameter slot j.
func (s *Instance) Sensitivity(i, j int) (float64, error) {
	if s.rs.Sens == nil {
		return 0, ErrNoSensitivity
	}
	if i < 0 || i >= len(s.rs.Sens) || j < 0 || j >= len(s.sensIdx) {
		return 0, fmt.Errorf("%w: sensitivity (%d, %d) out of range", ErrUnknownVariable, i, j)
	}
	return s.rs.Sens[i][j], nil
}

// SensitivityOf is Sensitivity addressed by names.
func (s *Instance) SensitivityOf(variable, parameter string) (float64, error) {
	if s.rs.Sens == nil {
		return 0, ErrNoSensitivity
	}
	i, ok := s.model.Lookup(variable)
	if !ok || i >= s.model.NEq {
		return 0, fmt.Errorf("%w: %s is not differential", ErrUnknownVariable, variable)
	}
	for j, idx := range s.sensIdx {
		if s.model.Name(idx) == parameter {
			return s.rs.Sens[i][j], nil
		}
	}
	return 0, fmt.Errorf("%w: %s is not a sensitivity parameter", ErrUnknownVariable, parameter)
}
