package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lynks-network/lynks/internal/app/settlement"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server with the sweeper and purge worker",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Serve(ctx)
}

// ─── sweep ──────────────────────────────────────────────────────────────────

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Auto-approve submissions older than the review window, once",
	Long: `Run one auto-approval sweep and exit. Intended for external schedulers
(cron, systemd timers). Running it twice, or alongside the in-process
sweeper, never pays a submission twice.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Engine.SweepDue(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return printOutput(cmd.OutOrStdout(), res, func(w io.Writer) {
		printSweep(w, res)
	})
}

func printSweep(w io.Writer, res settlement.SweepResult) {
	fmt.Fprintf(w, "Scanned %d stale submission(s): %d approved, %d skipped, %d failed\n",
		res.Scanned, res.Approved, res.Skipped, res.Failed)
}
