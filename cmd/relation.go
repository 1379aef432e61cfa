package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/trly/nfops/internal/relation"
)

// RelationCommand groups commands that inspect and edit the relation store.
type RelationCommand struct{}

var relationSide string

// GetCobraCommand returns the cobra command for relation operations.
func (c *RelationCommand) GetCobraCommand() *cobra.Command {
	relationCmd := &cobra.Command{
		Use:   "relation",
		Short: "Inspect and edit relation channels",
		Long: `Inspect and edit relation channels.

A channel links a provider unit to a consumer unit over a named endpoint and is
identified as <provider>:<endpoint>:<consumer>. Each side of a channel holds a
flat key-value map written by that side.`,
	}

	relationCmd.AddCommand(
		c.listCommand(),
		c.joinCommand(),
		c.breakCommand(),
		c.getCommand(),
		c.setCommand(),
	)
	return relationCmd
}

func (c *RelationCommand) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List joined channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			chs, err := app.Store.Channels(cmd.Context())
			if err != nil {
				return err
			}
			tbl := newTable(cmd.OutOrStdout(), "ID", "Provider", "Endpoint", "Consumer", "Provider Keys")
			for _, ch := range chs {
				data, err := app.Store.Read(cmd.Context(), ch.ID(), relation.SideProvider)
				if err != nil {
					return err
				}
				tbl.AddRow(ch.ID(), ch.Provider, ch.Endpoint, ch.Consumer, len(data))
			}
			tbl.Print()
			return nil
		},
	}
}

func (c *RelationCommand) joinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "join <provider> <endpoint> <consumer>",
		Short: "Join a channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := relation.Channel{Provider: args[0], Endpoint: args[1], Consumer: args[2]}
			if err := getApp(cmd).Store.Join(cmd.Context(), ch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %s\n", ch.ID())
			return nil
		},
	}
}

func (c *RelationCommand) breakCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "break <id>",
		Short: "Break a channel and discard both sides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := relation.ParseID(args[0]); err != nil {
				return err
			}
			if err := getApp(cmd).Store.Break(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "broke %s\n", args[0])
			return nil
		},
	}
}

func (c *RelationCommand) getCommand() *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one side of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := relation.ParseSide(relationSide)
			if err != nil {
				return err
			}
			data, err := getApp(cmd).Store.Read(cmd.Context(), args[0], side)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(data))
			for k := range data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, data[k])
			}
			return nil
		},
	}
	getCmd.Flags().StringVar(&relationSide, "side", "provider", "Side to read (provider or consumer)")
	return getCmd
}

func (c *RelationCommand) setCommand() *cobra.Command {
	setCmd := &cobra.Command{
		Use:   "set <id> key=value...",
		Short: "Merge keys into one side of a channel",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := relation.ParseSide(relationSide)
			if err != nil {
				return err
			}
			data, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			if err := getApp(cmd).Store.Write(cmd.Context(), args[0], side, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d keys on %s (%s)\n", len(data), args[0], side)
			return nil
		},
	}
	setCmd.Flags().StringVar(&relationSide, "side", "provider", "Side to write (provider or consumer)")
	return setCmd
}

func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q: want key=value", a)
		}
		out[k] = v
	}
	return out, nil
}
