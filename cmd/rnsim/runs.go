package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/rnsim/internal/export"
	"github.com/san-kum/rnsim/internal/storage"
)

var (
	plotVars   []string
	plotHeight int
	plotWidth  int
	svgOutput  string
)

const maxPlots = 6

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	cmd.Flags().StringSliceVar(&plotVars, "vars", nil, "variables to plot (default: the first few)")
	cmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	cmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	return cmd
}

func newExportSVGCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export the time course as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	cmd.Flags().StringSliceVar(&plotVars, "vars", nil, "variables to draw (default all)")
	cmd.Flags().StringVarP(&svgOutput, "output", "o", "", "output file (default stdout)")
	return cmd
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func loadRun(cmd *cobra.Command, id string) (*storage.Run, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Load(id)
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	runs, err := st.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tEND\tSTEPS\tMETHOD\tSENS")
	for _, run := range runs {
		sens := "-"
		switch {
		case run.Adjoint:
			sens = "adjoint"
		case run.Sensitivity:
			sens = "forward"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%d\t%s\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.EndTime,
			run.Steps,
			run.Method,
			sens,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	if len(run.Values) == 0 {
		return fmt.Errorf("no data to plot")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run: %s\n", run.ID)
	fmt.Fprintf(out, "model: %s\n", run.Model)
	fmt.Fprintf(out, "samples: %d over [%g, %g]\n\n", len(run.Times), run.Times[0], run.Times[len(run.Times)-1])

	names := plotVars
	if len(names) == 0 {
		names = run.Names
		if len(names) > maxPlots {
			names = names[:maxPlots]
		}
	}
	for _, name := range names {
		col := -1
		for j, n := range run.Names {
			if n == name {
				col = j
				break
			}
		}
		if col < 0 {
			return fmt.Errorf("unknown variable %s", name)
		}
		data := make([]float64, len(run.Values))
		for i, row := range run.Values {
			data[i] = row[col]
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(name+" vs time"),
		)
		fmt.Fprintln(out, graph)
		fmt.Fprintln(out)
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	return export.WriteJSON(cmd.OutOrStdout(), run)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	svg, err := export.TimeCourseSVG(run, plotVars, 800, 400)
	if err != nil {
		return err
	}
	if svgOutput == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), svg)
		return err
	}
	if err := os.WriteFile(svgOutput, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", svgOutput)
	return nil
}
