package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/api"
	"github.com/bryanchriswhite/CamWatch/internal/capture"
	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/detect"
	"github.com/bryanchriswhite/CamWatch/internal/frame"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
	"github.com/bryanchriswhite/CamWatch/internal/metrics"
	"github.com/bryanchriswhite/CamWatch/internal/output"
	"github.com/bryanchriswhite/CamWatch/internal/overlay"
	"github.com/bryanchriswhite/CamWatch/internal/store"
	"github.com/bryanchriswhite/CamWatch/internal/stream"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

var sourceFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CamWatch server",
	Long: `Start the acquisition loop and the HTTP server.

The loop connects to the configured camera, detects faces on every frame and
broadcasts the annotated JPEG to WebSocket and MJPEG viewers. The HTTP API
switches or stops the source while the server runs.`,
	Example: `  # Start with the configured default source
  camwatch serve

  # Start on a custom port against a specific camera
  camwatch serve --port 9090 --source rtsp://10.0.0.5:554/stream1

  # Start idle and pick a source later via the API
  camwatch serve --source ""

  # Start with debug logging
  camwatch serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&sourceFlag, "source", "", "camera address to start with (overrides stream.default_source)")
}

// closer collects resources released in reverse order at shutdown
type closer struct {
	fns []func()
}

func (c *closer) add(fn func()) {
	c.fns = append(c.fns, fn)
}

func (c *closer) closeAll() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	c.fns = nil
}

// releaseAfterLoop runs cleanup once the loop goroutine has exited. If it is
// still inside a blocking open or read after grace, the detector and sinks it
// uses are left open and false is returned.
func releaseAfterLoop(done <-chan struct{}, grace time.Duration, c *closer) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		c.closeAll()
		return true
	case <-timer.C:
		c.fns = nil
		return false
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			if err := configMgr.SetPort(port); err != nil {
				return err
			}
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			if err := configMgr.SetLogLevel(level); err != nil {
				return err
			}
		}
	}

	if cmd.Flags().Changed("source") {
		if err := configMgr.SetDefaultSource(sourceFlag); err != nil {
			return err
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	var cleanup closer
	defer cleanup.closeAll()

	opener, err := capture.New(cfg.Capture)
	if err != nil {
		return fmt.Errorf("failed to initialize capture: %w", err)
	}

	detector, err := detect.New(cfg.Detector)
	if err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}
	if c, ok := detector.(io.Closer); ok {
		cleanup.add(func() { c.Close() })
	}

	m := metrics.New()
	ov := overlay.NewFromConfig(cfg.Overlay)
	transform := frame.NewTransform(cfg.Stream.MaxWidth, detector, ov)
	encoder := frame.NewEncoder(cfg.Encoder.Quality)

	hub := output.NewHub(m)
	cleanup.add(func() { hub.Close() })
	broadcaster := output.NewBroadcaster(hub)

	var mjpegSink *output.MJPEGSink
	if cfg.MJPEG.Enabled {
		mjpegSink = output.NewMJPEGSink()
		broadcaster.Add(mjpegSink)
	}

	if cfg.MQTT.Broker != "" {
		mqttSink := output.NewMQTTSink(cfg.MQTT)
		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		err := mqttSink.Connect(ctx)
		cancel()
		if err != nil {
			// Auto-reconnect keeps trying; events are dropped until it succeeds
			log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT broker unreachable at startup")
		}
		async := output.NewAsyncSink(mqttSink.Name(), mqttSink.Publish, m)
		broadcaster.Add(async)
		cleanup.add(func() {
			async.Close()
			mqttSink.Close()
		})
	}

	if cfg.Redis.Addr != "" {
		redisSink := output.NewRedisSink(cfg.Redis)
		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		err := redisSink.Ping(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable at startup")
		}
		async := output.NewAsyncSink(redisSink.Name(), redisSink.Publish, m)
		broadcaster.Add(async)
		cleanup.add(func() {
			async.Close()
			redisSink.Close()
		})
	}

	var history api.History
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		client, err := store.Open(ctx, cfg.Database.DSN)
		if err == nil {
			sh := store.NewSourceHistory(client)
			if err = sh.Migrate(ctx); err == nil {
				history = sh
			}
			cleanup.add(func() { client.Close() })
		}
		cancel()
		if err != nil {
			// History is optional; the stream runs without it
			log.Error().Err(err).Msg("Source history disabled")
		}
	}

	state := stream.NewState(cfg.Stream.DefaultSource)
	loop := stream.NewLoop(stream.Deps{
		State:       state,
		Opener:      opener,
		Transform:   transform,
		Encoder:     encoder,
		Broadcaster: broadcaster,
		Metrics:     m,
	}, cfg.Stream)
	svc := stream.NewService(loop)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	svc.Start(ctx)

	opts := api.Options{
		State:   state,
		Health:  svc,
		Config:  configMgr,
		Viewers: hub,
		Metrics: m,
		History: history,
	}
	if mjpegSink != nil {
		opts.MJPEG = mjpegSink
	}
	server := api.NewServer(opts)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Str("capture", opener.Name()).
		Str("detector", cfg.Detector.Backend).
		Strs("sinks", broadcaster.Sinks()).
		Str("source", cfg.Stream.DefaultSource).
		Msg("CamWatch is running")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Stream loop still busy, waiting for its current open or read")
	}

	// An open or read can block for at most its own timeout
	grace := cfg.Capture.OpenTimeout + cfg.Capture.ReadTimeout
	if !releaseAfterLoop(svc.Done(), grace, &cleanup) {
		log.Error().Dur("grace", grace).Msg("Stream loop did not exit, leaving detector and sinks open")
	}
	return runErr
}
