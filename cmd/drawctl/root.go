package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"graphsync/client/syncclient"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type clientKey struct{}

type options struct {
	server   string
	clientID string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "drawctl",
		Short: "Inspect and edit graphsync diagrams",
		Long: `drawctl talks to a graphsync server over its HTTP API.

Edits are submitted as confirmations, exactly like a drawing client would,
and show up on every subscribed client.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			logger := zap.NewNop()
			if opts.verbose {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
			}
			client, err := syncclient.New(opts.server, syncclient.WithLogger(logger))
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), clientKey{}, client))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("GRAPHSYNC_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "server base URL (env GRAPHSYNC_URL)")
	root.PersistentFlags().StringVar(&opts.clientID, "client-id", "drawctl-"+uuid.NewString()[:8], "client id attached to submitted events")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log client activity to stderr")

	root.AddCommand(
		newGraphCmd(),
		newEventsCmd(),
		newAddNodeCmd(opts),
		newAddEdgeCmd(opts),
		newSpliceCmd(opts),
		newDeleteCmd(opts),
		newWatchCmd(opts),
		newLayoutCmd(),
	)
	return root
}

func clientFrom(cmd *cobra.Command) *syncclient.Client {
	return cmd.Context().Value(clientKey{}).(*syncclient.Client)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
