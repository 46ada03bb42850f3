package cli

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/raaihank/piiredact/internal/logger"
)

func (a *app) rulesCommand() *cobra.Command {
	var showPatterns bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the effective redaction rules",
		Long: `List the rules that a redaction run would apply, in evaluation order.

The list reflects --patterns and --no-defaults, so it can be used to check a
pattern file before running it against real text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg, logger.NewNop())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := tablewriter.NewWriter(out)
			header := []string{"Priority", "Name", "Replacement", "Source", "Description"}
			if showPatterns {
				header = append(header, "Pattern")
			}
			table.SetHeader(header)
			table.SetAutoWrapText(false)
			table.SetBorder(false)

			for _, rule := range reg.Rules() {
				row := []string{
					strconv.Itoa(rule.Priority),
					rule.Name,
					rule.Placeholder(),
					rule.Source,
					rule.Description,
				}
				if showPatterns {
					row = append(row, rule.Pattern)
				}
				table.Append(row)
			}
			table.Render()

			fmt.Fprintf(out, "\n%d rules, fingerprint %s, match timeout %s\n",
				reg.Len(), reg.Fingerprint(), reg.MatchTimeout())
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPatterns, "show-patterns", false, "include the regular expression of each rule")
	return cmd
}
