/*
Package rig manages the named cameras of one bench, each opened from a shared
Catalog by serial number.

Cameras are added by name ("vertical", "left", "front") and serial number, or
"auto" for the first device no other session holds.  The rig starts, stops and
triggers every camera at once and keeps frame statistics per camera.
*/
package rig

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/mvcam/camera"
)

// Auto selects the first enumerated device not held by another session
const Auto = "auto"

var (
	// ErrName is generated when a camera name is empty, contains a slash or is
	// already in use
	ErrName = errors.New("invalid camera name")

	// ErrNoCamera is generated when no camera has the requested name
	ErrNoCamera = errors.New("no such camera")

	// ErrNotFound is generated when no free device has the requested serial number
	ErrNotFound = errors.New("no device with that serial number")
)

// Stats summarizes the frames a camera delivered
type Stats struct {
	Frames    uint64    `json:"frames"`
	Bytes     uint64    `json:"bytes"`
	LastFrame uint64    `json:"lastFrame"`
	LastTime  time.Time `json:"lastTime,omitempty"`
}

type counter struct {
	mu sync.Mutex
	s  Stats
}

func (c *counter) OnFrame(n camera.FrameNotification) {
	c.mu.Lock()
	c.s.Frames++
	c.s.Bytes += uint64(n.Frame.FrameLen)
	c.s.LastFrame = n.Frame.FrameNum
	c.s.LastTime = n.Frame.HostTimestamp
	c.mu.Unlock()
}

func (c *counter) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// Camera is one named member of the rig
type Camera struct {
	Name    string
	Serial  string
	Session *camera.Session

	// Sink receives frames when the rig starts the camera.  Include Counter in
	// it to keep Stats current; when nil, the counter alone is used.
	Sink camera.FrameSink

	count counter
}

// Counter returns the sink which keeps the camera's Stats
func (c *Camera) Counter() camera.FrameSink { return &c.count }

// Stats returns the frame statistics so far
func (c *Camera) Stats() Stats { return c.count.stats() }

func (c *Camera) sink() camera.FrameSink {
	if c.Sink != nil {
		return c.Sink
	}
	return &c.count
}

// Status is the externally visible state of a camera
type Status struct {
	Name   string `json:"name"`
	Serial string `json:"serial"`
	Label  string `json:"label"`
	State  string `json:"state"`
	Stats  Stats  `json:"stats"`
}

// Rig is a set of named cameras
type Rig struct {
	Catalog *camera.Catalog

	// Transports are enumerated when a camera is added
	Transports camera.Transport

	// PacketSize negotiates the optimal packet size of network cameras on Add
	PacketSize bool

	mu      sync.Mutex
	cams    map[string]*Camera
	pending map[string]bool
}

// New returns an empty rig drawing cameras from cat
func New(cat *camera.Catalog, transports camera.Transport) *Rig {
	return &Rig{
		Catalog:    cat,
		Transports: transports,
		cams:       make(map[string]*Camera),
		pending:    make(map[string]bool),
	}
}

func (r *Rig) reserve(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%q: %w", name, ErrName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cams[name]; ok || r.pending[name] {
		return fmt.Errorf("%q is already in use: %w", name, ErrName)
	}
	r.pending[name] = true
	return nil
}

func (r *Rig) open(serial string) (*camera.Session, error) {
	devs, err := r.Catalog.ListDevices(r.Transports)
	if err != nil {
		return nil, err
	}
	auto := serial == "" || strings.EqualFold(serial, Auto)
	for _, d := range devs {
		if !auto && d.SerialNumber != serial {
			continue
		}
		if _, held := r.Catalog.Holder(d.Key()); held && auto {
			continue
		}
		s := r.Catalog.NewSession()
		err := s.Open(d)
		if err == nil {
			return s, nil
		}
		if auto && errors.Is(err, camera.ErrDeviceBusy) {
			// lost a race with another Add
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%s on %s: %w", serial, r.Transports, ErrNotFound)
}

// Add opens the device with the given serial number, or Auto, as name.
// Add may be called from several goroutines.  When packet size negotiation
// fails the camera is added and the error is a camera.TransportWarning.
func (r *Rig) Add(name, serial string) (*Camera, error) {
	if err := r.reserve(name); err != nil {
		return nil, err
	}
	defer func() {
		r.mu.Lock()
		delete(r.pending, name)
		r.mu.Unlock()
	}()

	s, err := r.open(serial)
	if err != nil {
		return nil, err
	}
	var warn error
	if r.PacketSize {
		if _, w := s.NegotiateOptimalPacketSize(); w != nil {
			warn = w
		}
	}
	c := &Camera{Name: name, Serial: serial, Session: s}
	if d, ok := s.Descriptor().(camera.DeviceDescriptor); ok {
		c.Serial = d.SerialNumber
	}

	r.mu.Lock()
	r.cams[name] = c
	r.mu.Unlock()
	log.WithFields(log.Fields{"camera": name, "serial": c.Serial, "session": s.ID()}).Info("camera added")
	return c, warn
}

// Remove closes the named camera and forgets it
func (r *Rig) Remove(name string) error {
	r.mu.Lock()
	c, ok := r.cams[name]
	delete(r.cams, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrNoCamera)
	}
	err := c.Session.Close()
	log.WithField("camera", name).Info("camera removed")
	return err
}

// Camera returns the named camera
func (r *Rig) Camera(name string) (*Camera, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cams[name]
	return c, ok
}

// Names lists the cameras in alphabetical order
func (r *Rig) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.cams))
	for name := range r.cams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Rig) each(fn func(*Camera) error) error {
	var errs []error
	for _, name := range r.Names() {
		c, ok := r.Camera(name)
		if !ok {
			continue
		}
		if err := fn(c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// StartAll starts every camera that is not already streaming.  Opened
// cameras are configured with their current values first.  Every camera is
// attempted; the errors of those that failed are joined.
func (r *Rig) StartAll() error {
	return r.each(func(c *Camera) error {
		switch c.Session.State() {
		case camera.Streaming:
			return nil
		case camera.Opened:
			if err := c.Session.Configure(); err != nil {
				return err
			}
		}
		return c.Session.StartGrabbing(c.sink())
	})
}

// StopAll stops every streaming camera
func (r *Rig) StopAll() error {
	return r.each(func(c *Camera) error { return c.Session.StopGrabbing() })
}

// ExecuteAll runs a command, such as TriggerSoftware, on every streaming camera
func (r *Rig) ExecuteAll(command string) error {
	return r.each(func(c *Camera) error {
		if c.Session.State() != camera.Streaming {
			return nil
		}
		return c.Session.Execute(command)
	})
}

// Status describes every camera, in name order
func (r *Rig) Status() []Status {
	out := []Status{}
	for _, name := range r.Names() {
		c, ok := r.Camera(name)
		if !ok {
			continue
		}
		st := Status{Name: name, Serial: c.Serial, State: c.Session.State().String(), Stats: c.Stats()}
		if d := c.Session.Descriptor(); d != nil {
			st.Label = d.Label()
		}
		out = append(out, st)
	}
	return out
}

// Close removes every camera
func (r *Rig) Close() error {
	var errs []error
	for _, name := range r.Names() {
		if err := r.Remove(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
