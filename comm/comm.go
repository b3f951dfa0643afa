/*
Package comm provides the byte link to bench accessories that sit beside a
camera, such as a trigger button box.

A Link is either a serial port (opened with tarm/serial) or a TCP socket to a
serial-to-ethernet converter.  Most usages boil down to:

	l := comm.NewLink("/dev/ttyUSB0", true)
	if err := l.Open(); err != nil {
		return err
	}
	defer l.Close()
	events := trigbox.Listen(ctx, l)

Opening retries with an exponential backoff, since converters and USB serial
adapters often refuse connections for a moment after a previous client left.
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// DefaultBaud is the line rate of the trigger box
const DefaultBaud = 9600

var (
	// ErrNotConnected is generated when Read is called on a closed Link
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrBaud is generated when a serial Link is opened at an unsupported rate
	ErrBaud = errors.New("unsupported baud rate")

	bauds = map[int]bool{9600: true, 19200: true, 38400: true, 57600: true, 115200: true}
)

// Link is a connection to an accessory.  One goroutine may Read while others
// call Connected or Close.
type Link struct {
	// Addr is a serial device path or a host:port
	Addr string

	// IsSerial selects a serial port instead of TCP
	IsSerial bool

	// Baud is the serial line rate, DefaultBaud if zero
	Baud int

	// ReadTimeout bounds each Read.  Zero blocks until data arrives.
	ReadTimeout time.Duration

	mu   sync.Mutex
	conn io.ReadWriteCloser
}

// NewLink creates a new Link to addr
func NewLink(addr string, serial bool) *Link {
	return &Link{Addr: addr, IsSerial: serial, Baud: DefaultBaud}
}

// SerialConf yields the serial config used to open the port
func (l *Link) SerialConf() *serial.Config {
	baud := l.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	return &serial.Config{Name: l.Addr, Baud: baud, ReadTimeout: l.ReadTimeout}
}

// Open the connection
func (l *Link) Open() error {
	if l.IsSerial && l.Baud != 0 && !bauds[l.Baud] {
		return fmt.Errorf("open %s at %d: %w", l.Addr, l.Baud, ErrBaud)
	}
	// only refusals and timeouts are worth retrying, a missing serial device
	// will not appear in the next few seconds
	var fatal error
	op := func() error {
		err := l.open()
		if err == nil {
			return nil
		}
		errS := strings.ToLower(err.Error())
		if strings.Contains(errS, "refused") || strings.Contains(errS, "timeout") {
			return err
		}
		fatal = err
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if fatal != nil {
		return fmt.Errorf("open %s: %w", l.Addr, fatal)
	}
	if err != nil {
		return fmt.Errorf("connection timeout to %s: %w", l.Addr, err)
	}
	return nil
}

func (l *Link) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if l.IsSerial {
		conn, err = serial.OpenPort(l.SerialConf())
	} else {
		conn, err = net.DialTimeout("tcp", l.Addr, 3*time.Second)
	}
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return nil
}

func (l *Link) current() io.ReadWriteCloser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// Connected reports whether the link is open
func (l *Link) Connected() bool {
	return l.current() != nil
}

// Close the connection.  Closing a closed Link is a no-op.
func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Read implements io.Reader over the connection.  A TCP read which hits
// ReadTimeout returns 0 bytes and a nil error, as a serial port does.
func (l *Link) Read(p []byte) (int, error) {
	conn := l.current()
	if conn == nil {
		return 0, ErrNotConnected
	}
	if c, ok := conn.(net.Conn); ok && l.ReadTimeout > 0 {
		c.SetReadDeadline(time.Now().Add(l.ReadTimeout))
		n, err := c.Read(p)
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return conn.Read(p)
}
