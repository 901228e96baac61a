package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/relaybus/internal/config"
)

func doctorCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check gateway reachability and report its health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gateway address to probe (default: read from config)")
	return cmd
}

type healthReport struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Channels    int    `json:"channels"`
}

func runDoctor(addr string) error {
	if addr == "" {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		addr = fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	}

	url := fmt.Sprintf("http://%s/health", addr)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		printRow("reachable", "NO ("+err.Error()+")")
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		printRow("reachable", fmt.Sprintf("NO (status %d)", resp.StatusCode))
		os.Exit(1)
	}

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	printRow("reachable", "yes")
	printRow("addr", addr)
	printRow("status", report.Status)
	printRow("connections", fmt.Sprintf("%d", report.Connections))
	printRow("channels", fmt.Sprintf("%d", report.Channels))
	return nil
}

// printRow aligns a two-column status table, accounting for
// variable-width runes in case a future label is non-ASCII.
func printRow(label, value string) {
	const labelWidth = 14
	pad := labelWidth - runewidth.StringWidth(label)
	if pad < 1 {
		pad = 1
	}
	fmt.Printf("%s%*s%s\n", label, pad, "", value)
}
