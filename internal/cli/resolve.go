package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"editdesk/api/internal/handshake"
)

// exitNotConfigured is returned when the host page carries no project id.
const exitNotConfigured = 2

type resolveOptions struct {
	file   string
	self   string
	parent string
	top    string
}

func init() {
	var opts resolveOptions
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the frame context of a host page and announce readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := openBus()
			if err != nil {
				return err
			}
			defer bus.Close()
			return runResolve(cmd.Context(), bus, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Host page HTML file (required)")
	cmd.Flags().StringVar(&opts.self, "self", handshake.DefaultFrameWindow, "Window id of the frame")
	cmd.Flags().StringVar(&opts.parent, "parent", "", "Window id of the parent")
	cmd.Flags().StringVar(&opts.top, "top", "", "Window id of the top window")
	_ = cmd.MarkFlagRequired("file")

	RootCmd.AddCommand(cmd)
}

func runResolve(ctx context.Context, bus handshake.Bus, opts resolveOptions, stdout, stderr io.Writer) error {
	f, err := os.Open(opts.file)
	if err != nil {
		return fmt.Errorf("open host page: %w", err)
	}
	defer f.Close()

	doc, err := handshake.ParseDocument(f)
	if err != nil {
		return err
	}

	self := opts.self
	if self == "" {
		self = handshake.DefaultFrameWindow
	}
	frame := handshake.FrameOnBus(bus, self, opts.parent, opts.top)
	resolved, err := handshake.NewResolver(frame).Resolve(ctx, doc)
	if errors.Is(err, handshake.ErrMissingProjectID) {
		fmt.Fprintln(stderr, "no project found: the page has no element with data-project-id")
		return exitError{code: exitNotConfigured}
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resolved)
}
