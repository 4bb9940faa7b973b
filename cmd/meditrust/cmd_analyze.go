package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var analyzeFlags struct {
	proceed bool
	city    string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <report>",
	Short: "Run the report analysis workflow",
	Long: `Analyze a PDF, Markdown or plain text medical report.

Usage:
  meditrust analyze report.pdf                         # stop after abnormalities
  meditrust analyze report.pdf --proceed --city Pune   # also recommend doctors

Agent settings come from config.toml and MEDITRUST_AGENT_* variables.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.BoolVar(&analyzeFlags.proceed, "proceed", false, "Recommend doctors for the abnormal findings")
	f.StringVar(&analyzeFlags.city, "city", "", "City used for doctor recommendations (required with --proceed)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	d := decision{proceed: analyzeFlags.proceed, city: analyzeFlags.city}
	if err := d.validate(); err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.analyze(cmd.Context(), cmd.OutOrStdout(), args[0], d)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nsession %s finished in phase %s\n", sess.ID, sess.Phase)
	return nil
}
