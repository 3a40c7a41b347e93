package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/internal/server"
	"github.com/matzehuels/atlaspack/pkg/sprite"
)

const defaultServeAddr = "127.0.0.1:8089"

// serveCommand creates the serve command that exposes a registry over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [file.ats]",
		Short: "Serve a descriptor's sprite registry as JSON",
		Long: `Serve a descriptor's sprite registry as a read-only JSON API.

Routes:
  GET /healthz
  GET /sprites
  GET /sprites/{name}        falls back to "unknown" with "fallback": true
  GET /ids/{id}/transform

The server stops cleanly on Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			reg, err := sprite.Load(c.FS, args[0])
			if err != nil {
				return err
			}

			printInfo("Serving %s on %s", StyleHighlight.Render(args[0]), StyleValue.Render("http://"+addr))
			printDetail("%d sprites · press Ctrl-C to stop", reg.Len())
			if err := server.New(reg, logger).ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("serve %s: %w", addr, err)
			}
			printSuccess("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "listen address")

	return cmd
}
