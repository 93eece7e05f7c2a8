package cli

import (
	"github.com/spf13/cobra"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Refresh bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's stored state",
		Long: `Print a document as stored. With --refresh, a document still awaiting
approval is queried at the authority first and the answer reconciled
into the database before printing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "query the authority before printing")

	return cmd
}

func runStatus(opts *StatusOptions, id string, cmd *cobra.Command) error {
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

	d, err := a.svc.Get(cmd.Context(), id)
	if err != nil {
		return commandError(formatter, err)
	}
	if opts.Refresh {
		d, err = a.svc.Refresh(cmd.Context(), id)
		if err != nil {
			return commandError(formatter, err)
		}
	}

	return formatter.PrintDocument(d)
}
