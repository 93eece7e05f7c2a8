package cli

import (
	"log/slog"
	"os"

	"github.com/fiscalstream/emissor/internal/authority"
	"github.com/fiscalstream/emissor/internal/config"
	"github.com/fiscalstream/emissor/internal/document"
	"github.com/fiscalstream/emissor/internal/reconcile"
	"github.com/fiscalstream/emissor/internal/store"
	"github.com/fiscalstream/emissor/internal/workflow"
)

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeConfig     = "E002" // Configuration load/validation error
	ErrCodeDatabase   = "E003" // Database error
	ErrCodeOrderFile  = "E004" // Order file unreadable or malformed
	ErrCodeWrite      = "E005" // Output file write error
	ErrCodeValidation = "E101" // Input validation failure
	ErrCodeRejected   = "E102" // Authority rejected the submission
	ErrCodeConflict   = "E103" // Document state does not allow the operation
	ErrCodeNotFound   = "E104" // Document not found
	ErrCodeTransport  = "E105" // Authority unreachable
	ErrCodeAuth       = "E106" // Authority authentication failure
)

// app bundles the wired components a command needs. Close releases the
// database handle.
type app struct {
	cfg    *config.Config
	store  *store.Store
	client *authority.Client
	rec    *reconcile.Reconciler
	svc    *workflow.Service
}

// setup configures logging, loads the config, opens the store, and wires
// the workflow service. waker may be nil for one-shot commands.
func setup(opts *RootOptions, waker workflow.Waker) (*app, error) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	client := authority.New(cfg.Environment, cfg.ActiveCredentials())
	rec := reconcile.NewReconciler(st)
	svc := workflow.New(st, client, rec, waker, cfg.Environment,
		workflow.WithMinJustification(cfg.Cancellation.MinJustification))

	return &app{cfg: cfg, store: st, client: client, rec: rec, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// commandError maps a workflow error to a formatted CLI error with the
// matching exit code. Rejections and conflicts are operation refusals
// (exit 1); infrastructure problems are command errors (exit 2).
func commandError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	exit := ExitCommandError

	switch {
	case document.IsValidation(err):
		code, exit = ErrCodeValidation, ExitFailure
	case document.IsStateConflict(err):
		code, exit = ErrCodeConflict, ExitFailure
	case workflow.IsNotFound(err), document.IsNotFound(err):
		code, exit = ErrCodeNotFound, ExitFailure
	case document.IsTransient(err):
		code = ErrCodeTransport
	case document.IsAuth(err):
		code = ErrCodeAuth
	default:
		if _, ok := document.IsSubmission(err); ok {
			code, exit = ErrCodeRejected, ExitFailure
		}
	}

	_ = formatter.Error(code, err.Error(), nil)
	return NewExitError(exit, err.Error())
}
