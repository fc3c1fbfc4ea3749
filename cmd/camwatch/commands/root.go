package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "camwatch",
		Short: "CamWatch - live face detection for network cameras",
		Long: `CamWatch pulls frames from a network camera, detects faces on each
frame and pushes the annotated result to every connected viewer.

Features:
  • RTSP/HTTP capture via ffmpeg (or OpenCV with -tags gocv)
  • Switch or stop the source at runtime over HTTP
  • Automatic reconnect when the camera drops
  • WebSocket and MJPEG viewers
  • Detection events to MQTT and redis
  • Source history in Postgres
  • Prometheus metrics`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/camwatch/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 5000)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
