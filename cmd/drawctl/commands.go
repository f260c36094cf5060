package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"graphsync/client/drawer"
	"graphsync/client/surface"
	"graphsync/domain/events"
	"graphsync/domain/graph"

	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Create or show graphs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create [graph-id]",
		Short: "Create an empty graph; the server picks an id when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			snap, err := clientFrom(cmd).CreateGraph(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <graph-id>",
		Short: "Show the canonical snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := clientFrom(cmd).GetGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	})
	return cmd
}

func newEventsCmd() *cobra.Command {
	var since string
	var limit int
	cmd := &cobra.Command{
		Use:   "events <graph-id>",
		Short: "List logged events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evs, err := clientFrom(cmd).ListEvents(cmd.Context(), args[0], since, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range evs {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only events after this event id")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default when 0)")
	return cmd
}

func submit(cmd *cobra.Command, opts *options, graphID string, t events.Type, payload any) error {
	ev, err := events.New(t, payload)
	if err != nil {
		return err
	}
	id, err := clientFrom(cmd).Submit(cmd.Context(), opts.clientID, graphID, ev)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func newAddNodeCmd(opts *options) *cobra.Command {
	var kind, label string
	cmd := &cobra.Command{
		Use:   "add-node <graph-id> <node-id>",
		Short: "Add a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, opts, args[0], events.TypeAddNodeSuccess, graph.Node{ID: args[1], Kind: kind, Label: label})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "faucet", "node kind")
	cmd.Flags().StringVar(&label, "label", "", "node label")
	return cmd
}

func newAddEdgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add-edge <graph-id> <source> <target>",
		Short: "Connect two nodes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[1] == args[2] {
				return fmt.Errorf("cannot connect %s to itself", args[1])
			}
			return submit(cmd, opts, args[0], events.TypeAddEdgeSuccess, graph.NewEdge(args[1], args[2]))
		},
	}
}

func newSpliceCmd(opts *options) *cobra.Command {
	var kind, label string
	cmd := &cobra.Command{
		Use:   "splice <graph-id> <source> <target> <node-id>",
		Short: "Insert a new node into the edge source/target",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := graph.SplicePayload{
				SourceID: args[1],
				TargetID: args[2],
				EdgeID:   graph.EdgeID(args[1], args[2]),
				Node:     graph.Node{ID: args[3], Kind: kind, Label: label},
			}
			return submit(cmd, opts, args[0], events.TypeAddNodeToEdgeSuccess, p)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "faucet", "node kind")
	cmd.Flags().StringVar(&label, "label", "", "node label")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete nodes or edges",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "node <graph-id> <node-id>",
		Short: "Delete a node and its incident edges",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, opts, args[0], events.TypeDeleteNodeSuccess, args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "edge <graph-id> <edge-id>",
		Short: "Delete an edge, given as source/target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := graph.ParseEdgeID(args[1]); err != nil {
				return err
			}
			return submit(cmd, opts, args[0], events.TypeDeleteEdgeSuccess, args[1])
		},
	})
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "watch <graph-id>",
		Short: "Print confirmations from other clients until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			out := make(chan events.Event, 64)
			sub, err := clientFrom(cmd).OnServerCreate(ctx, opts.clientID, args[0], since, func(ev events.Event) {
				select {
				case out <- ev:
				case <-ctx.Done():
				}
			})
			if err != nil {
				cancel()
				return err
			}
			defer func() {
				cancel()
				sub.Close()
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-sub.Done():
					return sub.Err()
				case ev := <-out:
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "replay events after this event id first")
	return cmd
}

func newLayoutCmd() *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "layout <graph-id>",
		Short: "Compute node positions for the current snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := surface.Direction(direction)
			if !dir.Valid() {
				return fmt.Errorf("direction must be TB or LR, got %q", direction)
			}
			snap, err := clientFrom(cmd).GetGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			surf := surface.NewMemory(nil)
			d := drawer.New(surf)
			if err := d.Initialize(); err != nil {
				return err
			}
			defer d.Close()
			for _, n := range snap.Nodes {
				if err := d.AddNode(n, drawer.Confirmed); err != nil {
					return err
				}
			}
			for _, e := range snap.Edges {
				if err := d.AddEdge(e, drawer.Confirmed); err != nil {
					return err
				}
			}
			if err := d.SetupLayout(dir); err != nil {
				return err
			}

			type placed struct {
				ID string  `json:"id"`
				X  float64 `json:"x"`
				Y  float64 `json:"y"`
			}
			var out []placed
			for _, n := range surf.Nodes() {
				p, _ := surf.Position(n.ID)
				out = append(out, placed{ID: n.ID, X: p.X, Y: p.Y})
			}
			slices.SortFunc(out, func(a, b placed) int {
				if c := cmp.Compare(a.Y, b.Y); c != 0 {
					return c
				}
				return cmp.Compare(a.X, b.X)
			})
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&direction, "direction", string(surface.DirectionTB), "TB or LR")
	return cmd
}
