package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/quotaguard/internal/simulator"
)

var (
	simAddr         string
	simReads        int
	simWindow       time.Duration
	simHint         string
	simSubscription string
	simToken        string
	simGroups       []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a local management API with a read quota",
	Long: `Serve resource group reads behind a fixed window quota. Every response
reports the remaining reads; once they run out requests are answered with 429
and a retry hint in the selected style (header, minutes, seconds or none).

Point the probe at it with QUOTAGUARD_ENDPOINT=http://<addr>.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simReads < 0 {
			return fmt.Errorf("reads[%d] must not be negative", simReads)
		}
		if simWindow <= 0 {
			return fmt.Errorf("window[%s] must be positive", simWindow)
		}

		hint, err := simulator.ParseHintStyle(simHint)
		if err != nil {
			return err
		}

		level := "info"
		if verbose {
			level = "debug"
		}
		logger := stderrLogger(level)

		sim := simulator.New(
			simulator.WithReads(simReads),
			simulator.WithWindow(simWindow),
			simulator.WithHint(hint),
			simulator.WithSubscription(simSubscription),
			simulator.WithToken(simToken),
			simulator.WithResourceGroups(simGroups...),
			simulator.WithLogger(logger),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return simulator.NewServer(simAddr, sim, logger).Run(ctx, nil)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simAddr, "addr", "127.0.0.1:8080", "listen address")
	simulateCmd.Flags().IntVar(&simReads, "reads", 12000, "reads allowed per window")
	simulateCmd.Flags().DurationVar(&simWindow, "window", time.Hour, "quota window")
	simulateCmd.Flags().StringVar(&simHint, "hint", string(simulator.HintMinutes), "retry hint style: header, minutes, seconds or none")
	simulateCmd.Flags().StringVar(&simSubscription, "subscription", "", "only serve this subscription id")
	simulateCmd.Flags().StringVar(&simToken, "token", "", "require this bearer token")
	simulateCmd.Flags().StringSliceVar(&simGroups, "groups", []string{"rg-default"}, "resource groups to list")
}
