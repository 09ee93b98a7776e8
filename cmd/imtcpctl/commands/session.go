package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect active TCP sessions",
	}

	cmd.AddCommand(sessionSummaryCmd())

	return cmd
}

func sessionSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the count of currently active TCP sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := httpClient.Get(adminURL("/v1/sessions"))
			if err != nil {
				return fmt.Errorf("get session summary: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("get session summary: admin API returned %s", resp.Status)
			}

			var body sessionSummaryResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode session summary: %w", err)
			}

			out, err := formatSessionSummary(body, outputFormat)
			if err != nil {
				return fmt.Errorf("format session summary: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
