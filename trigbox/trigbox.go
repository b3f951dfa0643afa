/*
Package trigbox decodes the serial protocol of a three button trigger box.

The box sends one ASCII byte per event and nothing else:

	T t 1	button 1 pressed
	2	button 2 pressed
	3	button 3 pressed
	E e	emergency stop
	R r	button 1 released

Every byte in the stream is decoded in order; bytes that are not part of the
protocol (line endings, noise) are skipped.
*/
package trigbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Event is something that happened on the box
type Event int

const (
	// Unknown is any byte not in the protocol
	Unknown Event = iota

	Button1Pressed
	Button2Pressed
	Button3Pressed
	EmergencyStop
	Button1Released
)

func (e Event) String() string {
	switch e {
	case Button1Pressed:
		return "Button1Pressed"
	case Button2Pressed:
		return "Button2Pressed"
	case Button3Pressed:
		return "Button3Pressed"
	case EmergencyStop:
		return "EmergencyStop"
	case Button1Released:
		return "Button1Released"
	case Unknown:
		return "Unknown"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Parse decodes one byte
func Parse(b byte) Event {
	switch b {
	case 'T', 't', '1':
		return Button1Pressed
	case '2':
		return Button2Pressed
	case '3':
		return Button3Pressed
	case 'E', 'e':
		return EmergencyStop
	case 'R', 'r':
		return Button1Released
	}
	return Unknown
}

// ParseAll decodes every protocol byte in p, in order
func ParseAll(p []byte) []Event {
	var out []Event
	for _, b := range p {
		if e := Parse(b); e != Unknown {
			out = append(out, e)
		}
	}
	return out
}

// Press is a decoded event and when it was read
type Press struct {
	Event Event
	Raw   byte
	Time  time.Time
}

// Listener decodes events from a reader on its own goroutine
type Listener struct {
	events chan Press

	mu  sync.Mutex
	err error
}

// Listen starts reading r.  The events channel is closed when ctx is done or
// r fails; a blocked read is only interrupted by closing r.
func Listen(ctx context.Context, r io.Reader) *Listener {
	l := &Listener{events: make(chan Press, 16)}
	go l.run(ctx, r)
	return l
}

// Events delivers decoded presses
func (l *Listener) Events() <-chan Press {
	return l.events
}

// Err is the read error that ended the listener, nil on io.EOF or
// cancellation.  Only meaningful once Events is closed.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Listener) run(ctx context.Context, r io.Reader) {
	defer close(l.events)
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.Read(buf)
		now := time.Now()
		for _, b := range buf[:n] {
			e := Parse(b)
			if e == Unknown {
				if b != '\r' && b != '\n' {
					log.WithField("byte", fmt.Sprintf("%#02x", b)).Debug("trigger box sent unknown byte")
				}
				continue
			}
			select {
			case l.events <- Press{Event: e, Raw: b, Time: now}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.WithError(err).Warn("trigger box read failed")
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
			}
			return
		}
	}
}
