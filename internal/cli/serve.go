package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscalstream/emissor/internal/reconcile"
)

const shutdownTimeout = 10 * time.Second

// WebhookPath is where the authority delivers status notifications.
const WebhookPath = "/webhooks/authority"

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and status poller",
		Long: `Start the reconciliation process: an HTTP listener for authority webhook
notifications and the adaptive background poller. Both channels converge
document status into the database; running neither means documents stay
in processing until an operator refreshes them manually.

Example:
  emissor serve --config prod.yaml
  emissor serve -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	a, err := setup(opts, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	pollCfg := reconcile.PollConfig{
		FastInterval:   a.cfg.Polling.FastInterval.Std(),
		SlowInterval:   a.cfg.Polling.SlowInterval.Std(),
		FreshThreshold: a.cfg.Polling.FreshThreshold.Std(),
		NotFoundGrace:  a.cfg.Polling.NotFoundGrace.Std(),
	}
	poller := reconcile.NewPoller(a.store, a.client, a.rec, reconcile.NewClock(), pollCfg)

	mux := http.NewServeMux()
	mux.Handle(WebhookPath, reconcile.NewWebhookHandler(a.store, a.rec, a.cfg.WebhookSecret))
	server := &http.Server{
		Addr:    a.cfg.ListenAddr,
		Handler: mux,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("webhook listener starting", "addr", a.cfg.ListenAddr, "path", WebhookPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("poller stopped", "error", err)
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Reconciliation running. Press Ctrl-C to stop.")

	select {
	case err := <-serverErr:
		cancel()
		<-pollerDone
		return WrapExitError(ExitCommandError, "webhook listener error", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down webhook listener", "error", err)
	}
	<-pollerDone

	slog.Info("reconciliation stopped gracefully")
	return nil
}
