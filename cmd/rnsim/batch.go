package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/rnsim/internal/automation"
	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/optim"
	"github.com/san-kum/rnsim/internal/sim"
	"github.com/san-kum/rnsim/internal/storage"
)

var (
	gridArgs     []string
	searchMetric string
	searchTarget string

	mcVars   []string
	mcSpread float64
	mcTrials int
	mcSeed   int64
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [model.yaml]",
		Short: "grid search over initial values and constants",
		Args:  cobra.ExactArgs(1),
		RunE:  gridSearch,
	}
	addRunFlags(cmd)
	cmd.Flags().StringArrayVar(&gridArgs, "grid", nil, "NAME=v1,v2,... or NAME=start:stop:count (repeatable)")
	cmd.Flags().StringVar(&searchMetric, "metric", "", "minimise this metric")
	cmd.Flags().StringVar(&searchTarget, "target", "", "minimise (final NAME - VALUE)^2, given as NAME=VALUE")
	cmd.Flags().IntVar(&scanParallel, "parallel", 0, "concurrent runs (0 = unlimited)")
	_ = cmd.MarkFlagRequired("grid")
	return cmd
}

func newMonteCarloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "montecarlo [model.yaml]",
		Short: "perturb initial values randomly and summarise final values",
		Args:  cobra.ExactArgs(1),
		RunE:  monteCarlo,
	}
	addRunFlags(cmd)
	cmd.Flags().StringSliceVar(&mcVars, "vary", nil, "variables to perturb")
	cmd.Flags().Float64Var(&mcSpread, "spread", 0.1, "relative perturbation")
	cmd.Flags().IntVar(&mcTrials, "trials", 100, "number of trials")
	cmd.Flags().Int64Var(&mcSeed, "seed", 0, "random seed (0 = time based)")
	cmd.Flags().IntVar(&scanParallel, "parallel", 0, "concurrent runs (0 = unlimited)")
	_ = cmd.MarkFlagRequired("vary")
	return cmd
}

func newScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario [scenario.yaml]",
		Short: "run a scripted sequence of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
}

// parseGrid reads NAME=v1,v2 or NAME=start:stop:count.
func parseGrid(arg string) (string, []float64, error) {
	name, raw, ok := strings.Cut(arg, "=")
	if !ok || name == "" || raw == "" {
		return "", nil, fmt.Errorf("invalid grid %q", arg)
	}
	if parts := strings.Split(raw, ":"); len(parts) == 3 {
		start, err1 := strconv.ParseFloat(parts[0], 64)
		stop, err2 := strconv.ParseFloat(parts[1], 64)
		count, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || count < 1 {
			return "", nil, fmt.Errorf("invalid grid range %q", arg)
		}
		values := make([]float64, count)
		for i := range values {
			if count == 1 {
				values[i] = start
				continue
			}
			values[i] = start + (stop-start)*float64(i)/float64(count-1)
		}
		return name, values, nil
	}
	var values []float64
	for _, field := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid grid value in %q: %w", arg, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func searchObjective() (optim.Objective, string, error) {
	switch {
	case searchMetric != "" && searchTarget != "":
		return nil, "", fmt.Errorf("--metric and --target are exclusive")
	case searchMetric != "":
		return optim.MetricObjective(searchMetric), searchMetric, nil
	case searchTarget != "":
		name, raw, ok := strings.Cut(searchTarget, "=")
		v, err := strconv.ParseFloat(raw, 64)
		if !ok || err != nil {
			return nil, "", fmt.Errorf("invalid target %q", searchTarget)
		}
		return optim.TargetObjective(name, v), fmt.Sprintf("(%s - %g)^2", name, v), nil
	}
	return nil, "", fmt.Errorf("one of --metric or --target is required")
}

func gridSearch(cmd *cobra.Command, args []string) error {
	objective, label, err := searchObjective()
	if err != nil {
		return err
	}
	var names []string
	var ranges [][]float64
	for _, arg := range gridArgs {
		name, values, err := parseGrid(arg)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	_, base, err := runSettings(cmd)
	if err != nil {
		return err
	}
	store := diag.NewStore()
	m, err := buildModel(cmd.ErrOrStderr(), args[0], store)
	if err != nil {
		return err
	}

	if _, err := metricSet(m); err != nil {
		return err
	}
	g := optim.NewGridSearch(names, ranges)
	g.Limit = scanParallel
	g.Metrics = func() []sim.Metric {
		ms, _ := metricSet(m)
		return ms
	}
	ctx, cancel := signalContext()
	defer cancel()
	best, points, err := g.Search(ctx, m, base, objective)
	if points == nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), label)
	for _, p := range points {
		for _, name := range names {
			fmt.Fprintf(tw, "%g\t", p.Params[name])
		}
		if p.Err != nil {
			fmt.Fprintf(tw, "error: %v\n", p.Err)
			continue
		}
		fmt.Fprintf(tw, "%.6g\n", p.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprint(out, "\nbest:")
	for _, name := range names {
		fmt.Fprintf(out, " %s=%g", name, best.Params[name])
	}
	fmt.Fprintf(out, " (%s = %.6g)\n", label, best.Value)
	return nil
}

func monteCarlo(cmd *cobra.Command, args []string) error {
	_, base, err := runSettings(cmd)
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
	res, err := automation.RunMonteCarlo(ctx, m, base, automation.MonteCarloConfig{
		Variables: mcVars,
		Spread:    mcSpread,
		Trials:    mcTrials,
		Seed:      mcSeed,
		Limit:     scanParallel,
	})
	if err != nil {
		_ = dumpDiagnostics(cmd.ErrOrStderr(), store)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d trials, %d failed\n\n", len(res.Trials), res.Failed)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tMEAN\tSTDDEV\tMIN\tMAX")
	for _, name := range res.SortedStats() {
		s := res.Stats[name]
		fmt.Fprintf(tw, "%s\t%.6g\t%.6g\t%.6g\t%.6g\n", name, s.Mean, s.StdDev, s.Min, s.Max)
	}
	return tw.Flush()
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()
	results, runErr := automation.RunScenario(ctx, sc)

	out := cmd.OutOrStdout()
	for i, r := range results {
		label := r.Step.Name
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}
		if r.Result == nil || len(r.Result.Times) == 0 {
			fmt.Fprintf(out, "%s: %s: no result\n", label, r.Step.Model)
			_ = dumpDiagnostics(cmd.ErrOrStderr(), r.Store)
			continue
		}
		meta := storage.NewMetadata(r.ModelID, r.Settings, r.Result)
		meta.AdjointSensitivities = r.Gradient
		id, err := st.Save(meta, r.Result)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s -> run %s (t=%g)\n", label, r.ModelID, id, r.Result.Times[len(r.Result.Times)-1])
		params := make([]string, 0, len(r.Gradient))
		for name := range r.Gradient {
			params = append(params, name)
		}
		sort.Strings(params)
		for _, name := range params {
			fmt.Fprintf(out, "  d/d%s: %.6g\n", name, r.Gradient[name])
		}
		if err := dumpDiagnostics(cmd.ErrOrStderr(), r.Store); err != nil {
			logrus.Warnf("%s: %v", label, err)
		}
	}
	return runErr
}
