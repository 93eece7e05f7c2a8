package cli

import (
	"github.com/spf13/cobra"
)

// CancelOptions holds flags for the cancel command.
type CancelOptions struct {
	*RootOptions
	Justification string
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CancelOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cancel <document-id>",
		Short: "Void an authorized document",
		Long: `Request cancellation of an authorized document at the authority. The
justification is mandatory and length-checked locally before the network
call. Cancellation is irreversible.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Justification, "justification", "j", "", "cancellation justification (required)")
	_ = cmd.MarkFlagRequired("justification")

	return cmd
}

func runCancel(opts *CancelOptions, id string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	a, err := setup(opts.RootOptions, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer a.Close()

	doc, err := a.svc.Cancel(cmd.Context(), id, opts.Justification)
	if err != nil {
		return commandError(formatter, err)
	}

	return formatter.PrintDocument(doc)
}
