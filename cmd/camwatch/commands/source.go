package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:5000"

var (
	serverFlag       string
	sourceFormatFlag string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Control the camera source of a running server",
	Long:  `Switch, stop or inspect the source of a running CamWatch server over its HTTP API.`,
}

var sourceSetCmd = &cobra.Command{
	Use:   "set ADDRESS",
	Short: "Switch the server to a new camera",
	Example: `  camwatch source set rtsp://10.0.0.5:554/stream1
  camwatch source set http://10.0.0.7/mjpeg --server http://cam-box:5000`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceSet,
}

var sourceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Disconnect from the camera and go idle",
	Args:  cobra.NoArgs,
	RunE:  runSourceStop,
}

var sourceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current source address",
	Args:  cobra.NoArgs,
	RunE:  runSourceStatus,
}

var sourceHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show connection state and counters of the acquisition loop",
	Args:  cobra.NoArgs,
	RunE:  runSourceHealth,
}

var sourceHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent source changes",
	Args:  cobra.NoArgs,
	RunE:  runSourceHistory,
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceSetCmd)
	sourceCmd.AddCommand(sourceStopCmd)
	sourceCmd.AddCommand(sourceStatusCmd)
	sourceCmd.AddCommand(sourceHealthCmd)
	sourceCmd.AddCommand(sourceHistoryCmd)

	sourceCmd.PersistentFlags().StringVar(&serverFlag, "server", defaultServer, "base URL of the CamWatch server")
	sourceHealthCmd.Flags().StringVarP(&sourceFormatFlag, "format", "f", "yaml", "output format (yaml or json)")
	sourceHistoryCmd.Flags().StringVarP(&sourceFormatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// callAPI sends body (if any) as JSON and decodes the JSON reply into out
func callAPI(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimRight(serverFlag, "/") + path
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", serverFlag, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func runSourceSet(cmd *cobra.Command, args []string) error {
	var resp struct {
		Address string `json:"address"`
	}
	if err := callAPI(http.MethodPost, "/api/stream/source", map[string]string{"address": args[0]}, &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Source set: %s\n", resp.Address)
	return nil
}

func runSourceStop(cmd *cobra.Command, args []string) error {
	if err := callAPI(http.MethodPost, "/api/stream/stop", nil, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✅ Source stopped")
	return nil
}

func runSourceStatus(cmd *cobra.Command, args []string) error {
	var resp struct {
		Address *string `json:"address"`
	}
	if err := callAPI(http.MethodGet, "/api/stream/status", nil, &resp); err != nil {
		return err
	}
	if resp.Address == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No source (idle)")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), *resp.Address)
	return nil
}

func runSourceHealth(cmd *cobra.Command, args []string) error {
	var resp map[string]interface{}
	if err := callAPI(http.MethodGet, "/api/stream/health", nil, &resp); err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), resp, sourceFormatFlag)
}

func runSourceHistory(cmd *cobra.Command, args []string) error {
	var resp []map[string]interface{}
	if err := callAPI(http.MethodGet, "/api/stream/history", nil, &resp); err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), resp, sourceFormatFlag)
}
