package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dmchat/internal/api"
	"dmchat/internal/config"
)

// Online asks the running server's admin API who is connected and prints it.
func Online(cfg *config.Config, out io.Writer) error {
	client := &http.Client{Timeout: 5 * time.Second}

	url := fmt.Sprintf("http://%s/admin/online", cfg.AdminAddr)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to get online users (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.OnlineResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "Open connections:  %d\n", result.Connections)
	fmt.Fprintf(out, "Users online:      %d\n", len(result.UserIDs))
	for _, id := range result.UserIDs {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}
