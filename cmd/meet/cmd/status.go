package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/config"
)

var flagStatusServer string

var statusCmd = &cobra.Command{
	Use:   "status <room-id>",
	Short: "Show who is currently in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(args[0])
	},
}

func init() {
	statusCmd.Flags().StringVar(&flagStatusServer, "server", "", "relay websocket URL")
	rootCmd.AddCommand(statusCmd)
}

type roomStatus struct {
	Participants []struct {
		ID       string    `json:"id"`
		Name     string    `json:"name"`
		JoinedAt time.Time `json:"joinedAt"`
	} `json:"participants"`
}

func runStatus(roomID string) error {
	cfg, err := config.Load(config.Options{ServerURL: flagStatusServer})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/rooms/%s", cfg.StatusURL(), roomID)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("query relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned %s", resp.Status)
	}

	var status roomStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	if len(status.Participants) == 0 {
		fmt.Printf("room %s is empty\n", roomID)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Joined"})
	for _, p := range status.Participants {
		t.AppendRow(table.Row{p.ID, p.Name, p.JoinedAt.Format(time.RFC3339)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	return nil
}
