package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	ServerPort int    `json:"server_port" mapstructure:"server_port"`
	LogLevel   string `json:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" mapstructure:"log_pretty"`

	Stream   StreamConfig   `json:"stream" mapstructure:"stream"`
	Capture  CaptureConfig  `json:"capture" mapstructure:"capture"`
	Detector DetectorConfig `json:"detector" mapstructure:"detector"`
	Encoder  EncoderConfig  `json:"encoder" mapstructure:"encoder"`
	Overlay  OverlayConfig  `json:"overlay" mapstructure:"overlay"`
	MJPEG    MJPEGConfig    `json:"mjpeg" mapstructure:"mjpeg"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	MQTT     MQTTConfig     `json:"mqtt" mapstructure:"mqtt"`
	Redis    RedisConfig    `json:"redis" mapstructure:"redis"`
}

// StreamConfig controls the acquisition loop timing
type StreamConfig struct {
	// DefaultSource is the address the loop starts with; empty means idle
	DefaultSource    string        `json:"default_source" mapstructure:"default_source"`
	IdleInterval     time.Duration `json:"idle_interval" mapstructure:"idle_interval"`
	PaceInterval     time.Duration `json:"pace_interval" mapstructure:"pace_interval"`
	ReconnectBackoff time.Duration `json:"reconnect_backoff" mapstructure:"reconnect_backoff"`
	ReadMissPause    time.Duration `json:"read_miss_pause" mapstructure:"read_miss_pause"`
	MaxWidth         int           `json:"max_width" mapstructure:"max_width"`
}

// CaptureConfig selects and tunes the capture backend
type CaptureConfig struct {
	Backend       string        `json:"backend" mapstructure:"backend"`
	FFmpegPath    string        `json:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	RTSPTransport string        `json:"rtsp_transport" mapstructure:"rtsp_transport"`
	OpenTimeout   time.Duration `json:"open_timeout" mapstructure:"open_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
}

// DetectorConfig selects the face detector
type DetectorConfig struct {
	Backend          string  `json:"backend" mapstructure:"backend"`
	// CascadePath empty means the built-in pigo facefinder cascade
	CascadePath      string  `json:"cascade_path" mapstructure:"cascade_path"`
	MinSize          int     `json:"min_size" mapstructure:"min_size"`
	ScaleFactor      float64 `json:"scale_factor" mapstructure:"scale_factor"`
	ShiftFactor      float64 `json:"shift_factor" mapstructure:"shift_factor"`
	MinNeighbors     int     `json:"min_neighbors" mapstructure:"min_neighbors"`
	IoUThreshold     float64 `json:"iou_threshold" mapstructure:"iou_threshold"`
	QualityThreshold float64 `json:"quality_threshold" mapstructure:"quality_threshold"`
}

// EncoderConfig controls JPEG output
type EncoderConfig struct {
	Quality int `json:"quality" mapstructure:"quality"`
}

// OverlayConfig controls what gets drawn on broadcast frames
type OverlayConfig struct {
	Enabled   bool `json:"enabled" mapstructure:"enabled"`
	Boxes     bool `json:"boxes" mapstructure:"boxes"`
	Label     bool `json:"label" mapstructure:"label"`
	LineWidth int  `json:"line_width" mapstructure:"line_width"`
}

// MJPEGConfig enables the multipart JPEG viewer endpoint
type MJPEGConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// DatabaseConfig points at the Postgres store used for source history
type DatabaseConfig struct {
	DSN string `json:"dsn" mapstructure:"dsn"`
}

// MQTTConfig enables publishing detection events to a broker
type MQTTConfig struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	ClientID string `json:"client_id" mapstructure:"client_id"`
	Topic    string `json:"topic" mapstructure:"topic"`
	QoS      int    `json:"qos" mapstructure:"qos"`
}

// RedisConfig enables publishing detection events to redis
type RedisConfig struct {
	Addr    string `json:"addr" mapstructure:"addr"`
	Channel string `json:"channel" mapstructure:"channel"`
	Key     string `json:"key" mapstructure:"key"`
}

// defaults are registered on viper so env overrides and Save see every key
var defaults = map[string]interface{}{
	"server_port": 5000,
	"log_level":   "info",
	"log_pretty":  false,

	"stream.default_source":    "rtsp://192.168.1.20:554/mjpeg/1",
	"stream.idle_interval":     "500ms",
	"stream.pace_interval":     "30ms",
	"stream.reconnect_backoff": "1s",
	"stream.read_miss_pause":   "500ms",
	"stream.max_width":         800,

	"capture.backend":        "ffmpeg",
	"capture.ffmpeg_path":    "ffmpeg",
	"capture.rtsp_transport": "tcp",
	"capture.open_timeout":   "10s",
	"capture.read_timeout":   "5s",

	"detector.backend":           "pigo",
	"detector.cascade_path":      "",
	"detector.min_size":          30,
	"detector.scale_factor":      1.1,
	"detector.shift_factor":      0.1,
	"detector.min_neighbors":     5,
	"detector.iou_threshold":     0.2,
	"detector.quality_threshold": 5.0,

	"encoder.quality": 90,

	"overlay.enabled":    true,
	"overlay.boxes":      true,
	"overlay.label":      false,
	"overlay.line_width": 2,

	"mjpeg.enabled": true,

	"database.dsn": "",

	"mqtt.broker":    "",
	"mqtt.client_id": "",
	"mqtt.topic":     "camwatch/detections",
	"mqtt.qos":       0,

	"redis.addr":    "",
	"redis.channel": "camwatch:detections",
	"redis.key":     "camwatch:latest",
}

// Validate fails fast on values the service cannot run with
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port out of range: %d", c.ServerPort)
	}
	if c.Stream.IdleInterval <= 0 {
		return fmt.Errorf("stream.idle_interval must be positive")
	}
	if c.Stream.PaceInterval <= 0 {
		return fmt.Errorf("stream.pace_interval must be positive")
	}
	if c.Stream.ReconnectBackoff <= 0 {
		return fmt.Errorf("stream.reconnect_backoff must be positive")
	}
	if c.Stream.ReadMissPause <= 0 {
		return fmt.Errorf("stream.read_miss_pause must be positive")
	}
	if c.Stream.MaxWidth <= 0 {
		return fmt.Errorf("stream.max_width must be positive, got %d", c.Stream.MaxWidth)
	}
	if c.Capture.Backend == "" {
		return fmt.Errorf("capture.backend is required")
	}
	if c.Encoder.Quality < 1 || c.Encoder.Quality > 100 {
		return fmt.Errorf("encoder.quality must be within 1-100, got %d", c.Encoder.Quality)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}
