package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/rnsim/internal/automation"
	"github.com/san-kum/rnsim/internal/config"
	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/metrics"
	"github.com/san-kum/rnsim/internal/odemodel"
	"github.com/san-kum/rnsim/internal/sim"
	"github.com/san-kum/rnsim/internal/storage"
)

var (
	setValues     map[string]string
	adjointWeight map[string]string
	scanParam     string
	scanValues    []float64
	scanParallel  int
)

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.Float64("time", 10.0, "end time")
	f.Int("steps", 100, "number of output steps")
	f.String("method", "rk45", "integration method")
	f.String("backend", "auto", "compute backend (auto|tree|closure)")
	f.Float64("abs-tol", 1e-12, "absolute tolerance")
	f.Float64("rel-tol", 1e-6, "relative tolerance")
	f.Int("max-steps", 10000, "internal step limit per output interval")
	f.Bool("jacobian", true, "use the symbolic jacobian")
	f.Bool("sens", false, "forward sensitivity analysis")
	f.StringSlice("sens-params", nil, "parameters to differentiate by (default all)")
	f.Bool("adjoint", false, "adjoint sensitivity analysis of sum w_i y_i(T)")
	f.Bool("halt-steady", false, "stop once a steady state is reached")
	f.Bool("halt-event", false, "stop after the first event")
	f.Float64("steady-threshold", 1e-9, "steady-state threshold")
	f.StringToStringVar(&setValues, "set", nil, "initial value overrides NAME=VALUE")
	f.StringToStringVar(&adjointWeight, "weight", nil, "adjoint objective weights NAME=VALUE")
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [model.yaml]",
		Short: "run a time course",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(cmd)
	return cmd
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [model.yaml]",
		Short: "run one time course per value of a constant, concurrently",
		Args:  cobra.ExactArgs(1),
		RunE:  scanParameter,
	}
	addRunFlags(cmd)
	cmd.Flags().StringVar(&scanParam, "param", "", "constant to vary")
	cmd.Flags().Float64SliceVar(&scanValues, "values", nil, "values of the constant")
	cmd.Flags().IntVar(&scanParallel, "parallel", 0, "concurrent runs (0 = unlimited)")
	_ = cmd.MarkFlagRequired("param")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func parseFloats(kind string, in map[string]string) (map[string]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(in))
	for name, raw := range in {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %s=%s: %w", kind, name, raw, err)
		}
		out[name] = v
	}
	return out, nil
}

// runSettings merges the config with the map-valued flags, which koanf
// cannot layer.
func runSettings(cmd *cobra.Command) (*config.Config, sim.Settings, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, sim.Settings{}, err
	}
	settings := cfg.Settings()
	overrides, err := parseFloats("override", setValues)
	if err != nil {
		return nil, settings, err
	}
	weights, err := parseFloats("weight", adjointWeight)
	if err != nil {
		return nil, settings, err
	}
	for name, v := range overrides {
		if settings.Overrides == nil {
			settings.Overrides = map[string]float64{}
		}
		settings.Overrides[name] = v
	}
	for name, w := range weights {
		if settings.AdjointWeights == nil {
			settings.AdjointWeights = map[string]float64{}
		}
		settings.AdjointWeights[name] = w
	}
	return cfg, settings, nil
}

// buildModel runs the load, reduce and assembly pipeline. Diagnostics are
// printed on failure.
func buildModel(w io.Writer, path string, store *diag.Store) (*odemodel.Model, error) {
	m, err := automation.LoadModel(path, store)
	if err != nil {
		_ = dumpDiagnostics(w, store)
		return nil, err
	}
	return m, nil
}

// metricSet returns the metrics every CLI run records: species
// conservation, positivity and the mean rate norm.
func metricSet(m *odemodel.Model) ([]sim.Metric, error) {
	species := map[string]float64{}
	for i := 0; i < m.NEq; i++ {
		species[m.Name(i)] = 1
	}
	if len(species) == 0 {
		return nil, nil
	}
	total, err := metrics.NewConservation(m, species)
	if err != nil {
		return nil, err
	}
	drift, err := metrics.NewConservationDrift(m, species)
	if err != nil {
		return nil, err
	}
	return []sim.Metric{total, drift, metrics.NewPositivity(m.NEq, 0), metrics.NewRateNorm(m.NEq)}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, settings, err := runSettings(cmd)
	if err != nil {
		return err
	}

	store := diag.NewStore()
	m, err := buildModel(cmd.ErrOrStderr(), args[0], store)
	if err != nil {
		return err
	}

	inst, err := sim.New(m, settings, store)
	if err != nil {
		_ = dumpDiagnostics(cmd.ErrOrStderr(), store)
		return err
	}
	defer inst.Close()
	ms, err := metricSet(m)
	if err != nil {
		return err
	}
	for _, metric := range ms {
		inst.AddMetric(metric)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(out, "running %s with %s...\n", m.ID, settings.Method)
	start := time.Now()
	if err := inst.Integrate(ctx); err != nil {
		_ = dumpDiagnostics(cmd.ErrOrStderr(), store)
		return err
	}

	res := inst.Result()
	meta := storage.NewMetadata(m.ID, settings, res)
	if settings.Adjoint {
		grad, err := runAdjoint(ctx, inst)
		if err != nil {
			_ = dumpDiagnostics(cmd.ErrOrStderr(), store)
			return err
		}
		meta.AdjointSensitivities = make(map[string]float64, len(grad))
		for j, v := range grad {
			meta.AdjointSensitivities[res.SensNames[j]] = v
		}
	}
	elapsed := time.Since(start)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	runID, err := st.Save(meta, res)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "completed in %v (%s)\n", elapsed, inst.State())
	fmt.Fprintf(out, "run id: %s\n", runID)
	fmt.Fprintf(out, "steps: %d\n", len(res.Times)-1)
	printFinal(out, res)
	if len(res.Events) > 0 {
		fmt.Fprintln(out, "\nevents:")
		for _, e := range res.Events {
			fmt.Fprintf(out, "  %s at t=%g\n", e.ID, e.Time)
		}
	}
	if settings.Sensitivity {
		printSensitivities(out, res)
	}
	if len(meta.AdjointSensitivities) > 0 {
		fmt.Fprintln(out, "\nadjoint sensitivities:")
		for _, name := range res.SensNames {
			fmt.Fprintf(out, "  d/d%s: %.6g\n", name, meta.AdjointSensitivities[name])
		}
	}
	fmt.Fprintln(out, "\nmetrics:")
	for _, name := range sortedKeys(res.Metrics) {
		fmt.Fprintf(out, "  %s: %.6f\n", name, res.Metrics[name])
	}
	return dumpDiagnostics(cmd.ErrOrStderr(), store)
}

func runAdjoint(ctx context.Context, inst *sim.Instance) ([]float64, error) {
	if err := inst.ResetAdjointPhase(); err != nil {
		return nil, err
	}
	if err := inst.Integrate(ctx); err != nil {
		return nil, err
	}
	return inst.AdjointSensitivities()
}

func printFinal(w io.Writer, res *sim.Result) {
	final := res.Final()
	if final == nil {
		return
	}
	fmt.Fprintf(w, "\nfinal values at t=%g:\n", res.Times[len(res.Times)-1])
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, name := range res.Names {
		fmt.Fprintf(tw, "  %s\t%.6g\n", name, final[i])
	}
	_ = tw.Flush()
}

func printSensitivities(w io.Writer, res *sim.Result) {
	if len(res.Sensitivities) == 0 {
		return
	}
	final := res.Sensitivities[len(res.Sensitivities)-1]
	fmt.Fprintln(w, "\nsensitivities at final time:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "  \t")
	fmt.Fprintln(tw, strings.Join(res.SensNames, "\t"))
	for i, row := range final {
		fmt.Fprintf(tw, "  %s", res.Names[i])
		for _, v := range row {
			fmt.Fprintf(tw, "\t%.6g", v)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}

func scanParameter(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, base, err := runSettings(cmd)
	if err != nil {
		return err
	}
	store := diag.NewStore()
	m, err := buildModel(cmd.ErrOrStderr(), args[0], store)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	outcomes, err := automation.Sweep(ctx, m, base, scanParam, scanValues, scanParallel)
	if outcomes == nil {
		_ = dumpDiagnostics(cmd.ErrOrStderr(), store)
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tRUN\tSTATUS", strings.ToUpper(scanParam))
	for _, name := range m.Names()[:m.NEq] {
		fmt.Fprintf(tw, "\t%s", name)
	}
	fmt.Fprintln(tw)
	failed := 0
	for i, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(tw, "%g\t-\t%v\n", scanValues[i], o.Err)
			_ = dumpDiagnostics(cmd.ErrOrStderr(), o.Store)
			continue
		}
		id, err := st.Save(storage.NewMetadata(m.ID, o.Settings, o.Result), o.Result)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%g\t%s\tok", scanValues[i], id)
		for _, v := range o.Result.Final()[:m.NEq] {
			fmt.Fprintf(tw, "\t%.6g", v)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	logrus.Infof("scan of %s: %d runs, %d failed", scanParam, len(outcomes), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
	}
	return nil
}

func printODEs(cmd *cobra.Command, args []string) error {
	store := diag.NewStore()
	m, err := buildModel(cmd.ErrOrStderr(), args[0], store)
	if err != nil {
		return err
	}
	if err := m.WriteEquations(cmd.OutOrStdout()); err != nil {
		return err
	}
	return dumpDiagnostics(cmd.ErrOrStderr(), store)
}

func printJacobian(cmd *cobra.Command, args []string) error {
	store := diag.NewStore()
	m, err := buildModel(cmd.ErrOrStderr(), args[0], store)
	if err != nil {
		return err
	}
	if _, err := m.ConstructJacobian(); err != nil {
		_ = dumpDiagnostics(cmd.ErrOrStderr(), store)
		return err
	}
	if err := m.WriteJacobian(cmd.OutOrStdout()); err != nil {
		return err
	}
	return dumpDiagnostics(cmd.ErrOrStderr(), store)
}
