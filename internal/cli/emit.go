package cli

import (
	"github.com/spf13/cobra"
)

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "emit <order-file>",
		Short: "Submit a fiscal document to the authority",
		Long: `Build a submission payload from an order file and file it with the
certifying authority. The command returns as soon as the authority
acknowledges receipt; approval is asynchronous and lands via webhook or
polling.

Example:
  emissor emit ./orders/ord-0001.yaml
  emissor emit --config prod.yaml --format json ./orders/svc-0042.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(rootOpts, args[0], cmd)
		},
	}
}

func runEmit(opts *RootOptions, orderPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	in, err := loadOrderFile(orderPath)
	if err != nil {
		_ = formatter.Error(ErrCodeOrderFile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid order file", err)
	}

	a, err := setup(opts, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer a.Close()

	doc, err := a.svc.Submit(cmd.Context(), in)
	if err != nil {
		// A synchronous rejection still produced a stored record worth
		// showing; state is in doc.ErrorMessage.
		if doc.ID != "" {
			_ = formatter.PrintDocument(doc)
		}
		return commandError(formatter, err)
	}

	return formatter.PrintDocument(doc)
}
