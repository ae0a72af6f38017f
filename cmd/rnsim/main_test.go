package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

var runIDPattern = regexp.MustCompile(`run id: (\S+)`)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.WarnLevel)
	os.Exit(m.Run())
}

func writeModel(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "warn"))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func runID(t *testing.T, out string) string {
	t.Helper()
	m := runIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func TestRunListExport(t *testing.T) {
	for _, kind := range []string{"file", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			model := writeModel(t, conversionDoc)
			data := t.TempDir()

			out, _, err := execute(t, "run", model, "--data", data, "--store", kind, "--time", "5", "--steps", "10", "--sens")
			require.NoError(t, err)
			assert.Contains(t, out, "final values at t=5")
			assert.Contains(t, out, "sensitivities at final time")
			assert.Contains(t, out, "conserved_total")
			id := runID(t, out)

			out, _, err = execute(t, "list", "--data", data, "--store", kind)
			require.NoError(t, err)
			assert.Contains(t, out, id)
			assert.Contains(t, out, "forward")

			out, _, err = execute(t, "export-json", id, "--data", data, "--store", kind)
			require.NoError(t, err)
			var doc struct {
				Steps  int                   `json:"steps"`
				Series map[string][]*float64 `json:"series"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &doc))
			assert.Equal(t, 10, doc.Steps)
			require.Len(t, doc.Series["A"], 11)
			// A + B is conserved
			last := len(doc.Series["A"]) - 1
			assert.InDelta(t, 10, *doc.Series["A"][last]+*doc.Series["B"][last], 1e-6)

			out, _, err = execute(t, "plot", id, "--data", data, "--store", kind, "--vars", "B")
			require.NoError(t, err)
			assert.Contains(t, out, "B vs time")

			out, _, err = execute(t, "analyze", id, "--data", data, "--store", kind, "--threshold", "5")
			require.NoError(t, err)
			assert.Contains(t, out, "PERIOD")
			assert.Contains(t, out, "CROSSINGS")

			out, _, err = execute(t, "phase", id, "--data", data, "--store", kind, "--x", "A", "--y", "B")
			require.NoError(t, err)
			assert.Contains(t, out, "B vs A")

			_, _, err = execute(t, "phase", id, "--data", data, "--store", kind, "--x", "A", "--y", "Z")
			assert.Error(t, err)

			svgPath := filepath.Join(t.TempDir(), "run.svg")
			_, _, err = execute(t, "export-svg", id, "--data", data, "--store", kind, "-o", svgPath)
			require.NoError(t, err)
			svg, err := os.ReadFile(svgPath)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(svg), "<?xml"))
		})
	}
}

func TestRunAdjoint(t *testing.T) {
	model := writeModel(t, conversionDoc)
	out, _, err := execute(t, "run", model, "--data", t.TempDir(), "--adjoint", "--weight", "B=1,A=0")
	require.NoError(t, err)
	assert.Contains(t, out, "adjoint sensitivities:")
	assert.Contains(t, out, "d/dk:")
}

func TestRunOverridesAndPreset(t *testing.T) {
	model := writeModel(t, conversionDoc)
	out, _, err := execute(t, "run", model, "--data", t.TempDir(), "--preset", "fast", "--set", "A=4", "--time", "1e-9", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "with rk4")
	assert.Regexp(t, `A\s+4\b`, out)
}

func TestRunErrors(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"), "--data", t.TempDir())
	assert.Error(t, err)

	bad := writeModel(t, strings.Replace(conversionDoc, "k * A", "k * A * Q", 1))
	_, errOut, err := execute(t, "run", bad, "--data", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, errOut+err.Error(), "Q")

	model := writeModel(t, conversionDoc)
	_, _, err = execute(t, "run", model, "--data", t.TempDir(), "--method", "leapfrog")
	assert.Error(t, err)

	_, _, err = execute(t, "run", model, "--data", t.TempDir(), "--set", "A=lots")
	assert.Error(t, err)

	_, _, err = execute(t, "run", model, "--data", t.TempDir(), "--store", "s3")
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	model := writeModel(t, conversionDoc)
	data := t.TempDir()
	out, _, err := execute(t, "scan", model, "--data", data, "--param", "k", "--values", "0.1,0.2,0.4", "--parallel", "2", "--time", "2", "--steps", "4")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, " ok"))

	out, _, err = execute(t, "list", "--data", data)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "conversion_"))

	_, _, err = execute(t, "scan", model, "--data", data, "--param", "nope", "--values", "1")
	assert.Error(t, err)
}

func TestODEsAndJacobian(t *testing.T) {
	model := writeModel(t, conversionDoc)
	out, _, err := execute(t, "odes", model)
	require.NoError(t, err)
	assert.Contains(t, out, "dA/dt = ")
	assert.Contains(t, out, "dB/dt = ")

	out, _, err = execute(t, "jacobian", model)
	require.NoError(t, err)
	assert.Contains(t, out, "d(dA/dt)/dA = ")
}

func TestPresets(t *testing.T) {
	out, _, err := execute(t, "presets")
	require.NoError(t, err)
	for _, name := range []string{"fast", "sensitivity", "steady", "tight"} {
		assert.Contains(t, out, name)
	}
}

func TestBadLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"presets", "--log-level", "chatty"})
	assert.Error(t, cmd.Execute())
}

func TestSearch(t *testing.T) {
	model := writeModel(t, conversionDoc)
	out, _, err := execute(t, "search", model, "--grid", "k=0.1,0.3,0.9", "--target", "A=7.4081822", "--time", "1", "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "best: k=0.3")

	// the slowest conversion has the smallest mean rate
	out, _, err = execute(t, "search", model, "--grid", "k=0.1:0.5:3", "--metric", "rate_norm", "--time", "1", "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "best: k=0.1 ")

	out, _, err = execute(t, "search", model, "--grid", "k=0.1,0.2", "--metric", "missing", "--time", "1", "--steps", "2")
	require.Error(t, err)
	assert.Contains(t, out, "error:")

	_, _, err = execute(t, "search", model, "--grid", "k=0.1")
	assert.Error(t, err, "an objective is required")
}

func TestParseGrid(t *testing.T) {
	name, values, err := parseGrid("k=0:1:5")
	require.NoError(t, err)
	assert.Equal(t, "k", name)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, values)

	_, values, err = parseGrid("X=1, 2,4")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 4}, values)

	for _, bad := range []string{"k", "=1", "k=a,b", "k=0:1:0"} {
		_, _, err := parseGrid(bad)
		assert.Error(t, err, bad)
	}
}

func TestMonteCarloCmd(t *testing.T) {
	model := writeModel(t, conversionDoc)
	out, _, err := execute(t, "montecarlo", model, "--vary", "A,k", "--trials", "8", "--seed", "3", "--time", "1", "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "8 trials, 0 failed")
	assert.Contains(t, out, "VARIABLE")
}

func TestScenarioCmd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conversion.yaml"), []byte(conversionDoc), 0644))
	scenario := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(`
name: demo
steps:
  - name: baseline
    model: conversion.yaml
    end_time: 1
    steps: 4
  - name: gradient
    model: conversion.yaml
    end_time: 1
    steps: 4
    adjoint: true
`), 0644))

	data := t.TempDir()
	out, _, err := execute(t, "scenario", scenario, "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "baseline: conversion -> run conversion_")
	assert.Contains(t, out, "d/dk:")

	out, _, err = execute(t, "list", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "adjoint")
}
