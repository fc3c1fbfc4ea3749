package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// maxFrameBytes bounds a single JPEG frame coming out of ffmpeg
const maxFrameBytes = 16 << 20

func init() {
	Register("ffmpeg", func(cfg config.CaptureConfig) (Opener, error) {
		return NewFFmpegOpener(cfg), nil
	})
}

// FFmpegOpener decodes any source ffmpeg understands (RTSP, HTTP MJPEG,
// files) by running ffmpeg as a subprocess that writes MJPEG to stdout.
// This keeps cgo out of the default build.
type FFmpegOpener struct {
	cfg config.CaptureConfig
}

// NewFFmpegOpener creates a new ffmpeg-backed opener
func NewFFmpegOpener(cfg config.CaptureConfig) *FFmpegOpener {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	return &FFmpegOpener{cfg: cfg}
}

// Name returns the backend name
func (o *FFmpegOpener) Name() string {
	return "ffmpeg"
}

// Args returns the ffmpeg argument list (without the binary) for an address
func (o *FFmpegOpener) Args(address string) []string {
	inputArgs := ffmpeg.KwArgs{"loglevel": "error"}
	if strings.HasPrefix(address, "rtsp://") && o.cfg.RTSPTransport != "" {
		inputArgs["rtsp_transport"] = o.cfg.RTSPTransport
	}

	cmd := ffmpeg.Input(address, inputArgs).
		Output("pipe:", ffmpeg.KwArgs{
			"f":      "image2pipe",
			"vcodec": "mjpeg",
			"q:v":    "3",
		}).
		Compile()

	return cmd.Args[1:]
}

// Open starts ffmpeg and waits for the first decoded frame
func (o *FFmpegOpener) Open(ctx context.Context, address string) (Capture, error) {
	log := logger.WithComponent("capture")

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, o.cfg.FFmpegPath, o.Args(address)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	c := newStreamCapture(address, stdout, o.cfg.ReadTimeout)
	c.cmd = cmd
	c.cancel = cancel

	go c.logStderr(stderr)

	log.Debug().
		Str("address", address).
		Int("pid", cmd.Process.Pid).
		Msg("ffmpeg started, waiting for first frame")

	if err := c.awaitFirstFrame(ctx, o.cfg.OpenTimeout); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// streamCapture turns an MJPEG byte stream into frames. The reader goroutine
// keeps only the most recent decoded frame so a slow loop never falls behind
// the live source.
type streamCapture struct {
	address     string
	readTimeout time.Duration

	cmd    *exec.Cmd
	cancel context.CancelFunc

	frames  chan image.Image
	done    chan struct{}
	readErr error
	pending image.Image

	closeOnce sync.Once
}

func newStreamCapture(address string, r io.Reader, readTimeout time.Duration) *streamCapture {
	c := &streamCapture{
		address:     address,
		readTimeout: readTimeout,
		frames:      make(chan image.Image, 1),
		done:        make(chan struct{}),
	}
	go c.readFrames(r)
	return c
}

func (c *streamCapture) awaitFirstFrame(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case img := <-c.frames:
		c.pending = img
		return nil
	case <-c.done:
		return fmt.Errorf("source %s closed before first frame: %w", c.address, c.endErr())
	case <-timer.C:
		return fmt.Errorf("no frame from %s within %v", c.address, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readFrames continuously splits and decodes JPEG frames from the stream
func (c *streamCapture) readFrames(r io.Reader) {
	log := logger.WithComponent("capture")
	defer close(c.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameBytes)
	scanner.Split(SplitJPEG)

	for scanner.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			log.Debug().Err(err).Str("address", c.address).Msg("Skipping undecodable frame")
			continue
		}

		// Latest frame wins
		select {
		case c.frames <- img:
		default:
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- img:
			default:
			}
		}
	}

	c.readErr = scanner.Err()
}

func (c *streamCapture) endErr() error {
	if c.readErr != nil {
		return c.readErr
	}
	return io.EOF
}

// Read returns the next frame, ErrNoFrame after the read timeout, or a
// terminal error once the stream has ended.
func (c *streamCapture) Read() (image.Image, error) {
	if c.pending != nil {
		img := c.pending
		c.pending = nil
		return img, nil
	}

	select {
	case img := <-c.frames:
		return img, nil
	default:
	}

	timer := time.NewTimer(c.readTimeout)
	defer timer.Stop()

	select {
	case img := <-c.frames:
		return img, nil
	case <-c.done:
		// A frame may have landed just before the stream ended
		select {
		case img := <-c.frames:
			return img, nil
		default:
		}
		return nil, fmt.Errorf("stream %s ended: %w", c.address, c.endErr())
	case <-timer.C:
		return nil, ErrNoFrame
	}
}

// Close stops ffmpeg and waits for it to exit
func (c *streamCapture) Close() error {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			logger.WithComponent("capture").Warn().
				Str("address", c.address).
				Msg("Frame reader did not stop in time")
		}

		if c.cmd != nil && c.cmd.Process != nil {
			c.cmd.Wait()
		}
	})
	return nil
}

// logStderr forwards ffmpeg diagnostics to the log
func (c *streamCapture) logStderr(r io.Reader) {
	log := logger.WithComponent("capture")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Warn().Str("address", c.address).Str("ffmpeg", scanner.Text()).Msg("ffmpeg message")
	}
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// SplitJPEG is a bufio.SplitFunc yielding one complete JPEG image (SOI to
// EOI) per token. Bytes outside an image are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF || len(data) == 0 {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF, it may begin the next SOI
		return len(data) - 1, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
