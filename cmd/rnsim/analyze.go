package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/rnsim/internal/analysis"
	"github.com/san-kum/rnsim/internal/storage"
)

var (
	analyzeVars      []string
	analyzeThreshold float64
	phaseX, phaseY   string
	phaseWidth       int
	phaseHeight      int
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "summarise each variable of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	cmd.Flags().StringSliceVar(&analyzeVars, "vars", nil, "variables to analyse (default all)")
	cmd.Flags().Float64Var(&analyzeThreshold, "threshold", 0, "count upward crossings of this level")
	return cmd
}

func newPhaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "draw one variable against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phaseRun,
	}
	cmd.Flags().StringVar(&phaseX, "x", "", "horizontal variable")
	cmd.Flags().StringVar(&phaseY, "y", "", "vertical variable")
	cmd.Flags().IntVar(&phaseWidth, "width", 60, "plot width")
	cmd.Flags().IntVar(&phaseHeight, "height", 20, "plot height")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
	return cmd
}

func column(run *storage.Run, name string) ([]float64, error) {
	for j, n := range run.Names {
		if n != name {
			continue
		}
		data := make([]float64, len(run.Values))
		for i, row := range run.Values {
			data[i] = row[j]
		}
		return data, nil
	}
	return nil, fmt.Errorf("unknown variable %s", name)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	names := analyzeVars
	if len(names) == 0 {
		names = run.Names
	}
	crossings := cmd.Flags().Changed("threshold")

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	header := "VARIABLE\tMIN\tMAX\tT_MAX\tMEAN\tFINAL\tPERIOD"
	if crossings {
		header += "\tCROSSINGS"
	}
	fmt.Fprintln(w, header)
	for _, name := range names {
		data, err := column(run, name)
		if err != nil {
			return err
		}
		st, err := analysis.Describe(run.Times, data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		period := "-"
		if p, ok := analysis.DominantPeriod(run.Times, data); ok {
			period = fmt.Sprintf("%.4g", p)
		}
		line := fmt.Sprintf("%s\t%.6g\t%.6g\t%.4g\t%.6g\t%.6g\t%s",
			name, st.Min, st.Max, st.TMax, st.Mean, st.Final, period)
		if crossings {
			line += fmt.Sprintf("\t%d", len(analysis.Crossings(run.Times, data, analyzeThreshold)))
		}
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}

func phaseRun(cmd *cobra.Command, args []string) error {
	run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	p, err := analysis.NewPhasePortrait(run.Names, run.Values, phaseX, phaseY)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), p.ASCII(phaseWidth, phaseHeight))
	return err
}
