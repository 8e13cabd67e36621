package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/ui"
	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Ask the server for a fresh session id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		var s protocol.NewSession
		if err := fetchJSON(cmd.Context(), cfg.APIURL("/api/sessions/new"), &s); err != nil {
			return err
		}
		fmt.Println(ui.SessionInfoView(s.SessionID, fmt.Sprintf("christmas-tree join %s --name <you>", s.SessionID)))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List live sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		var sessions []protocol.SessionSummary
		if err := fetchJSON(cmd.Context(), cfg.APIURL("/api/sessions"), &sessions); err != nil {
			return err
		}
		fmt.Println(ui.SessionsView(sessions, time.Now()))
		return nil
	},
}

func fetchJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(sessionsCmd)
}
