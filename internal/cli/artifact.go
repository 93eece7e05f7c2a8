package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fiscalstream/emissor/internal/authority"
)

// ArtifactOptions holds flags for the artifact command.
type ArtifactOptions struct {
	*RootOptions
	Kind   string
	Output string
}

// NewArtifactCommand creates the artifact command.
func NewArtifactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArtifactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "artifact <document-id>",
		Short: "Download a document rendering from the authority",
		Long: `Fetch the rendered (PDF) or machine-readable (XML) artifact for a
settled document. The bytes are streamed from the authority; when the
live fetch fails but a stored link exists, the link is printed instead.

Example:
  emissor artifact 0192f0c1-... --kind render -o invoice.pdf
  emissor artifact 0192f0c1-... --kind machine`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArtifact(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "render", "artifact kind (render|machine)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runArtifact(opts *ArtifactOptions, id string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var kind authority.ArtifactKind
	switch opts.Kind {
	case "render":
		kind = authority.ArtifactRender
	case "machine":
		kind = authority.ArtifactMachine
	default:
		msg := fmt.Sprintf("invalid kind %q: must be render or machine", opts.Kind)
		_ = formatter.Error(ErrCodeValidation, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	a, err := setup(opts.RootOptions, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer a.Close()

	rc, link, err := a.svc.Artifact(cmd.Context(), id, kind)
	if err != nil {
		return commandError(formatter, err)
	}

	if rc == nil {
		// Stored-link fallback: nothing to stream, hand out the URL.
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	}
	defer rc.Close()

	out := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			_ = formatter.Error(ErrCodeWrite, err.Error(), nil)
			return WrapExitError(ExitCommandError, "creating output file", err)
		}
		defer f.Close()
		out = f
	}

	if _, err := io.Copy(out, rc); err != nil {
		_ = formatter.Error(ErrCodeWrite, err.Error(), nil)
		return WrapExitError(ExitCommandError, "writing artifact", err)
	}
	return nil
}
