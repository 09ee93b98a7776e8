package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func rulesetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ruleset",
		Short: "Inspect the running ruleset registry",
	}

	cmd.AddCommand(rulesetListCmd())

	return cmd
}

func rulesetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered ruleset",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := httpClient.Get(adminURL("/v1/rulesets"))
			if err != nil {
				return fmt.Errorf("list rulesets: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("list rulesets: admin API returned %s", resp.Status)
			}

			var body rulesetListResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode rulesets: %w", err)
			}

			out, err := formatRulesets(body.Rulesets, outputFormat)
			if err != nil {
				return fmt.Errorf("format rulesets: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
