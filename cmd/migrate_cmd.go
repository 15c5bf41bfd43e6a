package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ite-app/trustd/internal/secrets"
)

func migrateCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move legacy per-secret secure-store entries into the vault",
		Run: func(cmd *cobra.Command, args []string) {
			stack := buildStack()

			res, err := secrets.NewLegacyMigrator(stack.kc, stack.manager).Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(res, "", "  ")
				fmt.Println(string(data))
				return
			}

			fmt.Printf("Migrated: %d  Failed: %d\n", res.Migrated, res.Failed)
			for _, d := range res.Details {
				fmt.Println("  " + d)
			}
			if res.Migrated == 0 && res.Failed == 0 {
				fmt.Println("Nothing to migrate.")
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
