package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CamWatch configuration",
	Long:  `View and manage CamWatch configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective CamWatch configuration, including environment overrides.`,
	Example: `  # Show configuration as YAML (default)
  camwatch config show

  # Show configuration as JSON
  camwatch config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value. The result is validated before it is saved.`,
	Example: `  # Set server port
  camwatch config set server_port 9090

  # Point the loop at another camera
  camwatch config set stream.default_source rtsp://10.0.0.5:554/stream1

  # Slow down reconnect attempts
  camwatch config set stream.reconnect_backoff 5s`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get server port
  camwatch config get server_port

  # Get the detector backend
  camwatch config get detector.backend`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return writeFormatted(cmd.OutOrStdout(), configMgr.Settings(), formatFlag)
}

func writeFormatted(w io.Writer, v interface{}, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

// parseValue converts a command-line string to the type viper should store
func parseValue(key, value string) (interface{}, error) {
	switch key {
	case "log_level":
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[value] {
			return nil, fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		return value, nil
	case "server_port", "stream.max_width", "encoder.quality", "overlay.line_width",
		"detector.min_size", "detector.min_neighbors", "mqtt.qos":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", value)
		}
		return n, nil
	case "detector.scale_factor", "detector.shift_factor", "detector.iou_threshold", "detector.quality_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", value)
		}
		return f, nil
	case "log_pretty", "overlay.enabled", "overlay.boxes", "overlay.label", "mjpeg.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		return b, nil
	}
	// Durations and addresses stay strings; the config decoder parses them
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])

	value, err := parseValue(key, args[1])
	if err != nil {
		return err
	}

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := configMgr.Set(key, value); err != nil {
		return err
	}
	if err := configMgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration updated: %s = %v\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}
