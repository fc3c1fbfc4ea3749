package stream

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/bryanchriswhite/CamWatch/internal/capture"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
)

// ConnState is the lifecycle state of a source connection
type ConnState int

const (
	Closed ConnState = iota
	Opening
	Open
	Reading
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Reading:
		return "reading"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// ErrNotOpen is returned by Read when there is no open handle
var ErrNotOpen = errors.New("connection not open")

// ConnStats counts connection lifecycle events
type ConnStats struct {
	Opens               uint64
	OpenFailures        uint64
	ConsecutiveFailures uint64
	Releases            uint64
	Reconnects          uint64
	ReadMisses          uint64
}

// Connection owns one capture handle for one address. It is used only from
// the loop goroutine. The handle is non-nil exactly while the state is Open
// or Reading, and every way out of those states closes it once.
type Connection struct {
	opener  capture.Opener
	address string
	handle  capture.Capture
	state   ConnState
	lastErr error
	stats   ConnStats
}

// NewConnection creates a closed connection
func NewConnection(opener capture.Opener) *Connection {
	return &Connection{opener: opener}
}

// Address returns the address this connection targets
func (c *Connection) Address() string {
	return c.address
}

// State returns the lifecycle state
func (c *Connection) State() ConnState {
	return c.state
}

// IsOpen reports whether a handle is ready for reading
func (c *Connection) IsOpen() bool {
	return c.state == Open
}

// LastError returns the most recent open or read failure
func (c *Connection) LastError() error {
	return c.lastErr
}

// Stats returns the lifecycle counters
func (c *Connection) Stats() ConnStats {
	return c.stats
}

// Switch releases any current handle and targets a new address
func (c *Connection) Switch(address string) {
	c.Release()
	c.address = address
	c.state = Opening
	c.stats.ConsecutiveFailures = 0
	c.lastErr = nil
}

// Open makes one attempt to open the current address. A failure leaves the
// connection Failed; calling Open again retries the same address.
func (c *Connection) Open(ctx context.Context) error {
	if c.state == Open {
		return nil
	}
	if c.address == "" {
		return fmt.Errorf("no address to open")
	}

	c.state = Opening
	handle, err := c.opener.Open(ctx, c.address)
	if err != nil {
		c.state = Failed
		c.lastErr = err
		c.stats.OpenFailures++
		c.stats.ConsecutiveFailures++
		return err
	}

	c.handle = handle
	c.state = Open
	c.lastErr = nil
	c.stats.Opens++
	c.stats.ConsecutiveFailures = 0
	return nil
}

// Read pulls one frame. capture.ErrNoFrame leaves the connection open; any
// other error releases the handle and leaves it Failed so the next Open
// reconnects.
func (c *Connection) Read() (image.Image, error) {
	if c.state != Open {
		return nil, ErrNotOpen
	}

	c.state = Reading
	img, err := c.handle.Read()
	switch {
	case err == nil:
		c.state = Open
		return img, nil
	case errors.Is(err, capture.ErrNoFrame):
		c.state = Open
		c.stats.ReadMisses++
		return nil, err
	default:
		c.closeHandle()
		c.state = Failed
		c.lastErr = err
		c.stats.Reconnects++
		c.stats.ConsecutiveFailures++
		return nil, err
	}
}

// Release closes the handle if there is one and forgets the address. It is
// safe to call in any state.
func (c *Connection) Release() {
	c.closeHandle()
	c.address = ""
	c.state = Closed
}

func (c *Connection) closeHandle() {
	if c.handle == nil {
		return
	}
	if err := c.handle.Close(); err != nil {
		logger.WithComponent("stream").Debug().Err(err).Str("address", c.address).Msg("Error closing capture")
	}
	c.handle = nil
	c.stats.Releases++
}
