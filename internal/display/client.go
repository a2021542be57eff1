package display

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultTimeout bounds each dial and write.
const DefaultTimeout = 2 * time.Second

// Command names understood by the driver daemon.
const (
	CmdBuffer       = "Buffer"
	CmdClear        = "Clear"
	CmdMove         = "Move"
	CmdBacklight    = "Bcklight"
	CmdCursorMode   = "CursorMode"
	CmdShiftDisplay = "ShiftDisplay"
	CmdHome         = "Home"
	CmdWrite        = "Write"
)

// Command is one wire message.
type Command struct {
	Cmd  string         `json:"cmd"`
	Args map[string]any `json:"args"`
}

// Client is a connection to the display driver. It is safe for concurrent
// use; commands are serialized.
type Client struct {
	path    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the dial and write deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Dial connects to the driver socket at path. When clear is set the
// display is cleared and the cursor sent home.
func Dial(path string, clear bool, opts ...Option) (*Client, error) {
	c := &Client{path: path, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := c.connect()
	if err != nil {
		return nil, &DriverError{Op: "dial", Err: err}
	}
	c.conn = conn

	if clear {
		if err := c.Clear(); err != nil {
			c.Close()
			return nil, err
		}
		if err := c.Home(); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Path returns the socket path.
func (c *Client) Path() string { return c.path }

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Clear blanks the display.
func (c *Client) Clear() error { return c.Exec(Command{Cmd: CmdClear}) }

// Home moves the cursor to 0,0.
func (c *Client) Home() error { return c.Exec(Command{Cmd: CmdHome}) }

// Write flushes buffered text to the display.
func (c *Client) Write() error { return c.Exec(Command{Cmd: CmdWrite}) }

// Move places the cursor at column x, row y.
func (c *Client) Move(x, y int) error {
	return c.Exec(Command{Cmd: CmdMove, Args: map[string]any{"x": x, "y": y}})
}

// Buffer queues text at the cursor, folded to display-safe ASCII. With
// directly set the driver writes it out immediately.
func (c *Client) Buffer(text string, directly bool) error {
	return c.Exec(Command{Cmd: CmdBuffer, Args: map[string]any{"text": Fold(text), "directly": directly}})
}

// Backlight switches the backlight.
func (c *Client) Backlight(on bool) error {
	return c.Exec(Command{Cmd: CmdBacklight, Args: map[string]any{"state": on}})
}

// CursorMode sets the cursor style, e.g. "hide", "line" or "blink".
func (c *Client) CursorMode(mode string) error {
	return c.Exec(Command{Cmd: CmdCursorMode, Args: map[string]any{"mode": mode}})
}

// ShiftDisplay scrolls the display content by amount columns. Negative
// amounts scroll left.
func (c *Client) ShiftDisplay(amount int) error {
	return c.Exec(Command{Cmd: CmdShiftDisplay, Args: map[string]any{"amount": amount}})
}

// Exec sends cmd. A failed write is retried once over a fresh connection.
func (c *Client) Exec(cmd Command) error {
	line, err := json.Marshal(cmd)
	if err != nil {
		return &DriverError{Op: cmd.Cmd, Err: fmt.Errorf("encode: %w", err)}
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err = c.write(line); err == nil {
			return nil
		}
		c.conn.Close()
		c.conn = nil
	}

	conn, dialErr := c.connect()
	if dialErr != nil {
		return &DriverError{Op: cmd.Cmd, Err: fmt.Errorf("reconnect: %w", dialErr)}
	}
	c.conn = conn
	if err := c.write(line); err != nil {
		c.conn.Close()
		c.conn = nil
		return &DriverError{Op: cmd.Cmd, Err: err}
	}
	return nil
}

func (c *Client) connect() (net.Conn, error) {
	return net.DialTimeout("unix", c.path, c.timeout)
}

func (c *Client) write(line []byte) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(line)
	return err
}
