package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgPath string
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "edna",
	Short: "Draft engagement nudges for mentorship pairs",
	Long: `edna reads mentorship programme data exports, classifies each active
pair's engagement state, and drafts grounded nudge suggestions for a
human coordinator to review. Nothing is ever sent automatically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelWarn
		if verbose {
			logLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the edna version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edna version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: ./edna.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
