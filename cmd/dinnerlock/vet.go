package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/RogueScr1be/dinnerlock/internal/cli"
	"github.com/RogueScr1be/dinnerlock/pkg/sqlcheck"
	"github.com/RogueScr1be/dinnerlock/pkg/store"
)

var vetCmd = &cobra.Command{
	Use:   "vet",
	Short: "Run the isolation analyzer over the statement corpus",
	Long: `Run the static isolation analyzer over every SQL statement the storage
adapter can issue. Fully offline; no database connection is made.

A non-zero exit means a statement could touch another household's rows and
must be fixed before deploying.`,
	Example: `  # Check every adapter statement
  dinnerlock vet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus := store.Corpus()

		names := make([]string, 0, len(corpus))
		for name := range corpus {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := 0
		for _, name := range names {
			violations := sqlcheck.Validate(corpus[name])
			if len(violations) == 0 {
				if verbose > 0 {
					fmt.Printf("ok    %s\n", name)
				}
				continue
			}
			failed++
			fmt.Printf("FAIL  %s\n", name)
			for _, v := range violations {
				fmt.Printf("      [%s] %s\n", v.Rule, v.Message)
			}
		}

		if failed > 0 {
			return cli.ContractError(
				fmt.Sprintf("%d of %d statements violate the isolation contract", failed, len(names)), nil)
		}
		if !quiet {
			fmt.Printf("%d statements checked, all safe.\n", len(names))
		}
		return nil
	},
}
