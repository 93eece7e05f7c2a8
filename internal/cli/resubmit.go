package cli

import (
	"github.com/spf13/cobra"
)

// NewResubmitCommand creates the resubmit command.
func NewResubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit <document-id> <order-file>",
		Short: "Correct and refile a rejected document",
		Long: `Rebuild the submission payload from a corrected order file and file a
fresh attempt for an existing rejected document. Only documents in the
error state can be resubmitted; the document keeps its id and gains a
new authority protocol.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResubmit(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runResubmit(opts *RootOptions, id, orderPath string, cmd *cobra.Command) error {
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

	doc, err := a.svc.Resubmit(cmd.Context(), id, in)
	if err != nil {
		if doc.ID != "" {
			_ = formatter.PrintDocument(doc)
		}
		return commandError(formatter, err)
	}

	return formatter.PrintDocument(doc)
}
