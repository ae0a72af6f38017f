package sim

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/network"
	"github.com/san-kum/rnsim/internal/odemodel"
	"github.com/san-kum/rnsim/internal/reduce"
)

const decayDoc = `
id: decay
compartments:
  - id: cell
species:
  - id: X
    compartment: cell
    initialConcentration: 10
parameters:
  - id: k
    value: 0.5
reactions:
  - id: degradation
    reactants: [X]
    kineticLaw:
      math: k * X
`

const conversionDoc = `
id: conversion
compartments:
  - id: cell
species:
  - id: A
    compartment: cell
    initialConcentration: 10
  - id: B
    compartment: cell
    initialConcentration: 0
parameters:
  - id: k
    value: 0.3
reactions:
  - id: conv
    reactants: [A]
    products: [B]
    kineticLaw:
      math: k * A
`

func buildModel(t *testing.T, doc string) *odemodel.Model {
	t.Helper()
	store := diag.NewStore()
	nm, err := network.Parse([]byte(doc))
	require.NoError(t, err)
	rm, err := reduce.Reduce(nm, store)
	require.NoError(t, err)
	m, err := odemodel.Build(rm, store)
	require.NoError(t, err)
	return m
}

func withEvents(doc, events string) string {
	return doc + "events:\n" + events
}

func settings(end float64, steps int) Settings {
	s := DefaultSettings()
	s.EndTime = end
	s.Steps = steps
	s.RelTol = 1e-9
	return s
}

func run(t *testing.T, m *odemodel.Model, s Settings) *Instance {
	t.Helper()
	inst, err := New(m, s, nil)
	require.NoError(t, err)
	require.NoError(t, inst.Integrate(context.Background()))
	return inst
}

func TestLinearDecay(t *testing.T) {
	for _, method := range []string{"rk4", "rk45"} {
		for _, backend := range []string{"tree", "closure"} {
			t.Run(method+"/"+backend, func(t *testing.T) {
				s := settings(2, 20)
				s.Method, s.Backend = method, backend
				inst := run(t, buildModel(t, decayDoc), s)

				assert.Equal(t, Completed, inst.State())
				assert.True(t, inst.TimeCourseCompleted())
				x, err := inst.Value("X")
				require.NoError(t, err)
				assert.InDelta(t, 10*math.Exp(-1), x, 1e-6)

				r := inst.Result()
				assert.Len(t, r.Times, 21)
				assert.Equal(t, 2.0, r.Times[20])
				col, err := r.Column("X")
				require.NoError(t, err)
				assert.Equal(t, 10.0, col[0])
			})
		}
	}
}

func TestMassActionConservation(t *testing.T) {
	inst := run(t, buildModel(t, conversionDoc), settings(10, 50))
	a, err := inst.Result().Column("A")
	require.NoError(t, err)
	b, err := inst.Result().Column("B")
	require.NoError(t, err)
	for i := range a {
		assert.InDelta(t, 10, a[i]+b[i], 1e-8, "row %d", i)
	}
	assert.InDelta(t, 10*math.Exp(-3), a[len(a)-1], 1e-6)
}

func TestStepwiseStates(t *testing.T) {
	inst, err := New(buildModel(t, decayDoc), settings(1, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, Ready, inst.State())

	require.True(t, inst.IntegrateOneStep())
	assert.Equal(t, Stepping, inst.State())
	assert.Equal(t, 0.5, inst.Time())
	assert.False(t, inst.TimeCourseCompleted())

	require.True(t, inst.IntegrateOneStep())
	assert.Equal(t, Completed, inst.State())
	assert.False(t, inst.IntegrateOneStep())
}

func TestReset(t *testing.T) {
	inst := run(t, buildModel(t, decayDoc), settings(2, 10))
	first := inst.Result()

	require.NoError(t, inst.Reset())
	assert.Equal(t, Ready, inst.State())
	assert.Equal(t, 1, inst.Run())
	assert.Equal(t, 0.0, inst.Time())
	x, _ := inst.Value("X")
	assert.Equal(t, 10.0, x)
	assert.Len(t, inst.Result().Times, 1)

	require.NoError(t, inst.Integrate(context.Background()))
	assert.InDeltaSlice(t, first.Final(), inst.Result().Final(), 1e-12)
}

func TestOverridesAndSetValue(t *testing.T) {
	m := buildModel(t, decayDoc)
	s := settings(2, 10)
	s.Overrides = map[string]float64{"X": 4, "k": 1}
	inst := run(t, m, s)
	x, _ := inst.Value("X")
	assert.InDelta(t, 4*math.Exp(-2), x, 1e-6)

	require.NoError(t, inst.Reset())
	require.NoError(t, inst.SetValue("k", 0))
	require.NoError(t, inst.Integrate(context.Background()))
	x, _ = inst.Value("X")
	assert.InDelta(t, 4, x, 1e-12)

	assert.ErrorIs(t, inst.SetValue("nope", 1), ErrUnknownVariable)
	_, err := inst.Value("nope")
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestAssignmentsAreLazy(t *testing.T) {
	doc := strings.Replace(conversionDoc, "parameters:\n", "parameters:\n  - id: total\n    value: 0\n    constant: false\n", 1) + `
rules:
  - kind: assignment
    variable: total
    math: A + B
`
	inst, err := New(buildModel(t, doc), settings(1, 4), nil)
	require.NoError(t, err)
	require.True(t, inst.IntegrateOneStep())
	assert.True(t, inst.rs.AssignmentsCurrent, "recording a row refreshes assignments")

	require.NoError(t, inst.SetValue("A", 20))
	assert.False(t, inst.rs.AssignmentsCurrent)
	total, err := inst.Value("total")
	require.NoError(t, err)
	b, _ := inst.Value("B")
	assert.InDelta(t, 20+b, total, 1e-12)
	assert.ErrorIs(t, inst.SetValue("total", 1), ErrReadOnly)
}

func TestEventIdempotenceWithoutTrigger(t *testing.T) {
	plain := run(t, buildModel(t, decayDoc), settings(5, 50))
	never := withEvents(decayDoc, `
  - id: never
    trigger: X < -1
    assignments:
      - variable: X
        math: "100"
`)
	evented := run(t, buildModel(t, never), settings(5, 50))

	assert.Equal(t, plain.Result().Times, evented.Result().Times)
	assert.Equal(t, plain.Result().Values, evented.Result().Values)
	assert.Empty(t, evented.Result().Events)
}

func TestEventFiresOnRisingEdge(t *testing.T) {
	doc := withEvents(decayDoc, `
  - id: refill
    trigger: X < 5
    assignments:
      - variable: X
        math: "10"
`)
	inst, err := New(buildModel(t, doc), settings(3, 30), nil)
	require.NoError(t, err)

	var pending []float64
	for !inst.TimeCourseCompleted() {
		require.True(t, inst.IntegrateOneStep())
		if inst.State() == EventPending {
			pending = append(pending, inst.Time())
		}
	}

	require.Len(t, inst.Result().Events, 2)
	assert.InDelta(t, 1.4, inst.Result().Events[0].Time, 1e-9)
	assert.InDelta(t, 2.8, inst.Result().Events[1].Time, 1e-9)
	assert.InDeltaSlice(t, []float64{1.4, 2.8}, pending, 1e-9)

	x, err := inst.Result().Column("X")
	require.NoError(t, err)
	assert.Equal(t, 10.0, x[14])
	assert.InDelta(t, 10*math.Exp(-0.05), x[15], 1e-6)
}

func TestDelayedEventDueNearOutputTime(t *testing.T) {
	// 0.7 + 0.1 rounds just below the 0.8 output
	doc := withEvents(decayDoc, `
  - id: pulse
    trigger: time > 0.65
    delay: "0.1"
    assignments:
      - variable: X
        math: "20"
`)
	inst, err := New(buildModel(t, doc), settings(1, 10), nil)
	require.NoError(t, err)
	require.NoError(t, inst.Integrate(context.Background()))
	assert.Equal(t, Completed, inst.State())

	require.Len(t, inst.Result().Events, 1)
	assert.InDelta(t, 0.8, inst.Result().Events[0].Time, 1e-12)
	x, err := inst.Result().Column("X")
	require.NoError(t, err)
	assert.InDelta(t, 20, x[8], 1e-9)
	assert.InDelta(t, 20*math.Exp(-0.05), x[9], 1e-6)
}

func TestOutputTimesOneUlpApart(t *testing.T) {
	s := settings(1, 1)
	s.OutputTimes = []float64{0.5, math.Nextafter(0.5, 1), 1}
	inst := run(t, buildModel(t, decayDoc), s)
	assert.Equal(t, Completed, inst.State())
	require.Len(t, inst.Result().Times, 4)
	x, err := inst.Result().Column("X")
	require.NoError(t, err)
	assert.Equal(t, x[1], x[2])
}

func TestSimultaneousEventsUseOneSnapshot(t *testing.T) {
	doc := conversionDoc + `events:
  - id: swapA
    trigger: time > 0.5
    assignments:
      - variable: A
        math: B
  - id: swapB
    trigger: time > 0.5
    assignments:
      - variable: B
        math: A
`
	s := settings(2, 4)
	s.Overrides = map[string]float64{"k": 0}
	s.HaltOnEvent = true
	inst := run(t, buildModel(t, doc), s)

	assert.Equal(t, EventPending, inst.State())
	assert.True(t, inst.TimeCourseCompleted())
	a, _ := inst.Value("A")
	b, _ := inst.Value("B")
	assert.Equal(t, 0.0, a)
	assert.Equal(t, 10.0, b)
}

func TestDelayedEventUsesTriggerTimeValues(t *testing.T) {
	doc := withEvents(decayDoc, `
  - id: bolus
    trigger: time > 0.9
    delay: "0.5"
    assignments:
      - variable: X
        math: X + 100
`)
	s := settings(3, 1)
	s.OutputTimes = []float64{0.5, 1, 1.5, 2}
	inst := run(t, buildModel(t, doc), s)

	require.Len(t, inst.Result().Events, 1)
	assert.Equal(t, EventRecord{ID: "bolus", Time: 1.5}, inst.Result().Events[0])

	x, err := inst.Result().Column("X")
	require.NoError(t, err)
	bolus := 10*math.Exp(-0.5) + 100
	assert.InDelta(t, bolus, x[3], 1e-6)
	assert.InDelta(t, bolus*math.Exp(-0.25), x[4], 1e-5)
}

func TestSteadyStateHalts(t *testing.T) {
	s := settings(100, 100)
	s.SteadyStateThreshold = 1e-3
	s.HaltOnSteadyState = true
	store := diag.NewStore()
	inst, err := New(buildModel(t, decayDoc), s, store)
	require.NoError(t, err)
	require.NoError(t, inst.Integrate(context.Background()))

	assert.Equal(t, SteadyState, inst.State())
	assert.True(t, inst.TimeCourseCompleted())
	// 0.5 * 10 e^{-t/2} < 1e-3 first holds on the grid at t = 18
	assert.InDelta(t, 18, inst.Time(), 1e-9)
	assert.Len(t, inst.Result().Times, 19)
	assert.Len(t, store.Find(diag.CodeSteadyState), 1)
	assert.False(t, inst.IntegrateOneStep())
}

func TestCheckSteadyStateWithoutHalt(t *testing.T) {
	s := settings(40, 4)
	s.SteadyStateThreshold = 1e-3
	inst := run(t, buildModel(t, decayDoc), s)
	assert.Equal(t, Completed, inst.State())
	assert.True(t, inst.CheckSteadyState())
	assert.True(t, inst.rs.SteadyState)
	assert.Equal(t, Completed, inst.State(), "a completed run stays completed")
}

func TestIntegrationFailure(t *testing.T) {
	doc := `
id: blowup
compartments:
  - id: cell
species:
  - id: X
    compartment: cell
    initialConcentration: 1
reactions:
  - id: growth
    products: [X]
    kineticLaw:
      math: X * X
`
	s := settings(2, 4)
	s.MaxSteps = 50
	store := diag.NewStore()
	inst, err := New(buildModel(t, doc), s, store)
	require.NoError(t, err)

	err = inst.Integrate(context.Background())
	require.Error(t, err)
	var stepErr *StepError
	assert.ErrorAs(t, err, &stepErr)
	assert.Equal(t, Failed, inst.State())
	assert.Len(t, store.Find(diag.CodeIntegration), 1)
	assert.False(t, inst.IntegrateOneStep())
}

func TestSettingsErrors(t *testing.T) {
	m := buildModel(t, decayDoc)
	tests := []struct {
		name   string
		modify func(*Settings)
		want   error
	}{
		{"zero end", func(s *Settings) { s.EndTime = 0 }, ErrSettings},
		{"zero steps", func(s *Settings) { s.Steps = 0 }, ErrSettings},
		{"unsorted outputs", func(s *Settings) { s.OutputTimes = []float64{2, 1} }, ErrSettings},
		{"method", func(s *Settings) { s.Method = "leapfrog" }, ErrSettings},
		{"backend", func(s *Settings) { s.Backend = "gpu" }, ErrSettings},
		{"override", func(s *Settings) { s.Overrides = map[string]float64{"ghost": 1} }, ErrUnknownVariable},
		{"sens parameter", func(s *Settings) { s.Sensitivity, s.SensParameters = true, []string{"ghost"} }, ErrUnknownVariable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := settings(1, 10)
			tc.modify(&s)
			store := diag.NewStore()
			_, err := New(m, s, store)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, store.HasErrors())
		})
	}
}

func TestAlgebraicModelRejected(t *testing.T) {
	doc := strings.Replace(decayDoc, "parameters:\n", "parameters:\n  - id: z\n    value: 0\n    constant: false\n", 1) + `
rules:
  - kind: algebraic
    math: X + z - k
`
	store := diag.NewStore()
	nm, err := network.Parse([]byte(doc))
	require.NoError(t, err)
	rm, _ := reduce.Reduce(nm, store)
	m, err := odemodel.Build(rm, store)
	require.NoError(t, err)

	_, err = New(m, settings(1, 1), store)
	assert.ErrorIs(t, err, ErrAlgebraic)
}

func TestSetRebuildsEngine(t *testing.T) {
	inst := run(t, buildModel(t, decayDoc), settings(2, 10))
	s := settings(4, 8)
	s.Method = "rk4"
	require.NoError(t, inst.Set(s))
	assert.Nil(t, inst.engine)
	assert.Equal(t, 1, inst.Run())
	require.NoError(t, inst.Integrate(context.Background()))
	assert.Equal(t, 4.0, inst.Time())
	assert.Equal(t, "rk4", inst.Settings().Method)

	assert.ErrorIs(t, inst.Set(settings(0, 1)), ErrSettings)
	assert.Equal(t, Uninitialized, inst.State())
}

func TestClose(t *testing.T) {
	inst := run(t, buildModel(t, decayDoc), settings(1, 2))
	inst.Close()
	assert.Equal(t, Uninitialized, inst.State())
	assert.False(t, inst.IntegrateOneStep())
	assert.ErrorIs(t, inst.Reset(), ErrClosed)
	assert.ErrorIs(t, inst.Integrate(context.Background()), ErrClosed)
}

func TestIntegrateHonoursContext(t *testing.T) {
	inst, err := New(buildModel(t, decayDoc), settings(1, 10), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, inst.Integrate(ctx), context.Canceled)
	assert.Equal(t, Ready, inst.State())
}

type countMetric struct{ n int }

func (c *countMetric) Name() string              { return "rows" }
func (c *countMetric) Observe(float64, []float64) { c.n++ }
func (c *countMetric) Value() float64            { return float64(c.n) }
func (c *countMetric) Reset()                    { c.n = 0 }

func TestMetricsObserveRows(t *testing.T) {
	inst, err := New(buildModel(t, decayDoc), settings(1, 5), nil)
	require.NoError(t, err)
	inst.AddMetric(&countMetric{})
	require.NoError(t, inst.Integrate(context.Background()))
	assert.Equal(t, 6.0, inst.Result().Metrics["rows"])
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "event-pending", EventPending.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "adjoint", Backward.String())
}
