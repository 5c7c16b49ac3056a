package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set by main.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "imgcli",
	Short: "Image clustering CLI tool",
	Long: `imgcli is a command-line tool for grouping images by visual similarity.
Every image is resized to a fixed resolution and flattened into an RGB
vector, the vectors are reduced with principal component analysis and the
result is partitioned with k-means.

Use 'imgcli sweep' to inspect the elbow and silhouette curves, then
'imgcli cluster -k N' to group the images into N clusters.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imgcli version %s\n", Version)
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	pf.StringSliceVar(&envFiles, "env-file", nil, "Read IMGCLI_* variables from these .env files")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (same as --log-level debug)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&logFile, "log-file", "", "Also write logs to this file")
}

// Execute runs the command line with ctx, which is cancelled on interrupt.
func Execute(ctx context.Context) error {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{printf "%s version %s" .Name .Version}}
`)
	return rootCmd.ExecuteContext(ctx)
}
