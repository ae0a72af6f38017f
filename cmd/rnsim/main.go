package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/rnsim/internal/config"
	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/storage"
)

var (
	configFile string
	logLevel   string
	preset     string
)

var severityStyles = map[diag.Severity]lipgloss.Style{
	diag.Fatal:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	diag.Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	diag.Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
	diag.Message: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rnsim",
		Short:         "reaction network simulator",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("data", config.DefaultDataDir, "data directory")
	pf.String("store", config.DefaultStore, "run store (file|bolt)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")

	rootCmd.AddCommand(
		newRunCmd(),
		newScanCmd(),
		newSearchCmd(),
		newMonteCarloCmd(),
		newScenarioCmd(),
		&cobra.Command{
			Use:   "odes [model.yaml]",
			Short: "print the reduced ODE system",
			Args:  cobra.ExactArgs(1),
			RunE:  printODEs,
		},
		&cobra.Command{
			Use:   "jacobian [model.yaml]",
			Short: "print the symbolic jacobian",
			Args:  cobra.ExactArgs(1),
			RunE:  printJacobian,
		},
		&cobra.Command{
			Use:   "list",
			Short: "list runs",
			Args:  cobra.NoArgs,
			RunE:  listRuns,
		},
		newPlotCmd(),
		newAnalyzeCmd(),
		newPhaseCmd(),
		&cobra.Command{
			Use:   "export-json [run_id]",
			Short: "export run data to JSON",
			Args:  cobra.ExactArgs(1),
			RunE:  exportJSON,
		},
		newExportSVGCmd(),
		&cobra.Command{
			Use:   "presets",
			Short: "list available presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, name := range config.ListPresets() {
					p, _ := config.GetPreset(name)
					fmt.Fprintf(cmd.OutOrStdout(), "  %-12s method=%s rtol=%g atol=%g time=%g steps=%d\n",
						name, p.Method, p.RelTol, p.AbsTol, p.EndTime, p.Steps)
				}
				return nil
			},
		},
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithPreset(configFile, preset, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	return storage.Open(cfg.Store, cfg.DataDir)
}

// dumpDiagnostics prints every entry of store, most severe first, and
// returns an error when any of them is fatal or an error.
func dumpDiagnostics(w io.Writer, store *diag.Store) error {
	failed := store.HasErrors()
	entries := store.Clear()
	for sev := diag.Fatal; sev <= diag.Message; sev++ {
		for _, e := range entries {
			if e.Severity == sev {
				fmt.Fprintln(w, severityStyles[sev].Render(e.String()))
			}
		}
	}
	if failed {
		return fmt.Errorf("%d fatal, %d error diagnostics", countSeverity(entries, diag.Fatal), countSeverity(entries, diag.Error))
	}
	return nil
}

func countSeverity(entries []diag.Entry, sev diag.Severity) int {
	n := 0
	for _, e := range entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}
