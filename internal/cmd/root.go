// Package cmd implements the quotaprobe command line.
package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version string
		Commit  string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quotaprobe",
	Short: "Exercise a quota enforcing management API through a throttled client",
	Long: `quotaprobe issues requests against a resource management API through the
quotaguard throttle, reporting remaining read quota, the applied delay and the
length of the request sequence.

Configuration is read from an optional YAML file and QUOTAGUARD_* variables.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; QUOTAGUARD_* variables apply either way)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// newLogger builds the JSON logger used by every command. verbose wins over
// the configured level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func stderrLogger(level string) *slog.Logger {
	return newLogger(os.Stderr, level)
}
