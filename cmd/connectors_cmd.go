package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ite-app/trustd/internal/config"
)

func connectorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connectors",
		Short: "Manage OAuth connections to external services",
	}
	cmd.AddCommand(connectorsStatusCmd())
	cmd.AddCommand(connectorsConnectCmd())
	cmd.AddCommand(connectorsDisconnectCmd())
	cmd.AddCommand(connectorsLogoutCmd())
	cmd.AddCommand(connectorsResetCmd())
	cmd.AddCommand(connectorsToolsCmd())
	return cmd
}

func connectorsStatusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the connection state of every connector",
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			st := stack.registry.Status()

			if jsonOutput {
				data, _ := json.MarshalIndent(st, "", "  ")
				fmt.Println(string(data))
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tTOKEN\tEXPIRES\tERROR\n")
			for _, e := range st.Connectors {
				token := "-"
				expires := "-"
				if e.HasStoredToken {
					token = "stored"
					if e.TokenExpiresIn > 0 {
						expires = fmt.Sprintf("%ds", e.TokenExpiresIn)
					} else if e.TokenExpiresIn < 0 {
						expires = "expired"
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.DisplayName, token, expires, e.Error)
			}
			tw.Flush()
			fmt.Printf("\n%d connected, tokens stored: %v\n", st.ConnectedCount, st.HasAnyToken)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func connectorsConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <id>",
		Short: "Authorize a connector (opens a browser flow if needed)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			id := config.NormalizeConnectorID(args[0])

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := stack.registry.Connect(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Connected %s\n", id)
		},
	}
}

func connectorsDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <id>",
		Short: "Close the live session, keeping the stored token",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			id := config.NormalizeConnectorID(args[0])
			if err := stack.registry.Disconnect(id); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Disconnected %s\n", id)
		},
	}
}

func connectorsLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <id>",
		Short: "Delete the stored token for a connector",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			id := config.NormalizeConnectorID(args[0])
			if err := stack.registry.Logout(id); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Logged out %s\n", id)
		},
	}
}

func connectorsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Delete the stored token and client registration",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			id := config.NormalizeConnectorID(args[0])
			if err := stack.registry.ClearAll(id); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Reset %s\n", id)
		},
	}
}

func connectorsToolsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "tools <id>",
		Short: "List the tools exposed by a connected service",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			id := config.NormalizeConnectorID(args[0])

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Resume the session from the stored token for this invocation.
			if err := stack.registry.Connect(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer stack.registry.Shutdown()

			tools, err := stack.registry.Tools(ctx, id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(tools, "", "  ")
				fmt.Println(string(data))
				return
			}

			if len(tools) == 0 {
				fmt.Println("No tools exposed.")
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tDESCRIPTION\n")
			for _, t := range tools {
				desc := t.Description
				if len(desc) > 70 {
					desc = desc[:67] + "..."
				}
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, desc)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
