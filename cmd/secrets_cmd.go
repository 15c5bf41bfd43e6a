package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func secretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage vault secrets (values are never displayed)",
	}
	cmd.AddCommand(secretsSetCmd())
	cmd.AddCommand(secretsGetCmd())
	cmd.AddCommand(secretsListCmd())
	cmd.AddCommand(secretsDeleteCmd())
	return cmd
}

func secretsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret (value read from stdin)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()

			value, err := readSecretValue()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			if err := stack.manager.Set(args[0], value); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Stored %s\n", args[0])
		},
	}
}

// readSecretValue reads the value from stdin. On a terminal the echo is
// disabled so the value never appears on screen; piped input is read as one
// line.
func readSecretValue() (string, error) {
	fd := int(os.Stdin.Fd())
	var value string

	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Enter value (input is hidden): ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read value: %w", err)
		}
		value = string(raw)
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read value: %w", err)
		}
		value = line
	}

	value = strings.TrimRight(value, "\r\n")
	if value == "" {
		return "", errors.New("empty value")
	}
	return value, nil
}

func secretsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Check whether a secret exists",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			ok, err := stack.manager.Has(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if ok {
				fmt.Printf("%s: present\n", args[0])
			} else {
				fmt.Printf("%s: not set\n", args[0])
				os.Exit(1)
			}
		},
	}
}

func secretsListCmd() *cobra.Command {
	var jsonOutput bool
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored secret keys",
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			keys, err := stack.manager.ListKeys(prefix)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(keys, "", "  ")
				fmt.Println(string(data))
				return
			}

			if len(keys) == 0 {
				fmt.Println("No secrets stored.")
				return
			}
			for _, k := range keys {
				fmt.Println(k)
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&prefix, "prefix", "", "only keys under this prefix")
	return cmd
}

func secretsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>...",
		Short: "Delete secrets",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()
			if err := stack.manager.Delete(args...); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Deleted %d key(s)\n", len(args))
		},
	}
}
