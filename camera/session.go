package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Session
type State int

const (
	// Created is a session which has not been opened
	Created State = iota

	// Opened is a session holding an open handle, with no parameters set since
	// it was opened or last stopped
	Opened

	// Configured is an opened session which may start grabbing
	Configured

	// Streaming is a session delivering frames
	Streaming

	// Closed is a session whose handle has been released.  It cannot be reused.
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Opened:
		return "Opened"
	case Configured:
		return "Configured"
	case Streaming:
		return "Streaming"
	case Closed:
		return "Closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PacketSizeFeature is the GigE Vision stream channel packet size
const PacketSizeFeature = "GevSCPSPacketSize"

// TriggerSoftwareFeature is the command which fires a software trigger
const TriggerSoftwareFeature = "TriggerSoftware"

// Session owns one opened device or interface.  Control methods are not meant to
// be called concurrently from several goroutines; the caller serializes them.
// Frames are delivered to the sink on a goroutine owned by the runtime.
type Session struct {
	id  string
	cat *Catalog
	log *log.Entry

	mu     sync.Mutex
	state  State
	desc   Descriptor
	handle Handle
	dev    DeviceHandle

	// view guards state and desc for State and Descriptor, which a sink may
	// call while StopGrabbing holds mu
	view sync.RWMutex

	// deliver is held for reading while a frame is handed to the sink or pulled
	// from the runtime, and for writing while delivery is switched on or off
	deliver   sync.RWMutex
	streaming bool
	pull      bool
	sink      FrameSink
}

func newSession(c *Catalog) *Session {
	id := uuid.New().String()
	return &Session{
		id:  id,
		cat: c,
		log: log.WithField("session", id),
	}
}

// ID uniquely identifies the session within the process
func (s *Session) ID() string { return s.id }

// State returns the current state
func (s *Session) State() State {
	s.view.RLock()
	defer s.view.RUnlock()
	return s.state
}

// setState is called with mu held
func (s *Session) setState(st State) {
	s.view.Lock()
	s.state = st
	s.view.Unlock()
}

// Descriptor returns the descriptor the session was opened with, or nil
func (s *Session) Descriptor() Descriptor {
	s.view.RLock()
	defer s.view.RUnlock()
	return s.desc
}

func (s *Session) invalid(op string, want ...State) error {
	return &OpError{Op: op, Kind: ErrInvalidState, Err: fmt.Errorf("session is %s, need one of %v", s.state, want)}
}

// Open opens the device or interface described by d with exclusive access.
// d must have come from the session's Catalog.  If another session holds the
// same device, the error matches ErrDeviceBusy.
func (s *Session) Open(d Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "open"
	if s.state != Created {
		return s.invalid(op, Created)
	}
	if d == nil {
		return &OpError{Op: op, Kind: ErrParameter, Err: errors.New("nil descriptor")}
	}
	key := d.Key()
	if err := s.cat.claim(key, s); err != nil {
		if errors.Is(err, ErrDeviceBusy) {
			return &OpError{Op: op + " " + d.Label(), Kind: ErrDeviceBusy}
		}
		return &OpError{Op: op, Kind: ErrInvalidState, Err: err}
	}
	var err error
	switch v := d.(type) {
	case DeviceDescriptor:
		s.dev, err = s.cat.rt.OpenDevice(v)
		if err == nil {
			s.handle = s.dev
		}
	case *DeviceDescriptor:
		s.dev, err = s.cat.rt.OpenDevice(*v)
		if err == nil {
			s.handle = s.dev
		}
	case InterfaceDescriptor:
		s.handle, err = s.cat.rt.OpenInterface(v)
	case *InterfaceDescriptor:
		s.handle, err = s.cat.rt.OpenInterface(*v)
	default:
		err = &OpError{Op: op, Kind: ErrParameter, Err: fmt.Errorf("unsupported descriptor %T", d)}
	}
	if err != nil {
		s.cat.release(key, s)
		s.dev = nil
		s.handle = nil
		return opErr(op+" "+d.Label(), nil, err)
	}
	s.view.Lock()
	s.desc = d
	s.state = Opened
	s.view.Unlock()
	s.log = s.log.WithFields(log.Fields{"transport": d.Layer(), "label": d.Label()})
	s.log.Debug("session opened")
	return nil
}

// access returns the handle if parameters may be touched in the current state
func (s *Session) access(op string) (Handle, error) {
	switch s.state {
	case Opened, Configured, Streaming:
		return s.handle, nil
	}
	return nil, s.invalid(op, Opened, Configured, Streaming)
}

// classify attaches fallback as the kind of err unless the runtime error
// already carries one of the package sentinels
func classify(err error, fallback error) error {
	for _, k := range []error{ErrParameter, ErrDeviceBusy, ErrInvalidState, ErrTimeout, ErrEnumeration} {
		if errors.Is(err, k) {
			return nil
		}
	}
	return fallback
}

func (s *Session) set(op, name string, apply func(Handle) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.access(op)
	if err != nil {
		return err
	}
	if name == "" {
		return &OpError{Op: op, Kind: ErrParameter, Err: errors.New("empty parameter name")}
	}
	if err := apply(h); err != nil {
		return &OpError{Op: op + " " + name, Kind: classify(err, ErrParameter), Err: err}
	}
	if s.state == Opened {
		s.setState(Configured)
	}
	return nil
}

func (s *Session) get(op, name string, fetch func(Handle) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.access(op)
	if err != nil {
		return err
	}
	if name == "" {
		return &OpError{Op: op, Kind: ErrParameter, Err: errors.New("empty parameter name")}
	}
	if err := fetch(h); err != nil {
		return &OpError{Op: op + " " + name, Kind: classify(err, ErrParameter), Err: err}
	}
	return nil
}

// SetInt sets an integer parameter
func (s *Session) SetInt(name string, v int64) error {
	err := s.set("set int", name, func(h Handle) error { return h.SetInt(name, v) })
	if err == nil {
		s.log.WithFields(log.Fields{"param": name, "value": v}).Debug("set int")
	}
	return err
}

// SetFloat sets a floating point parameter
func (s *Session) SetFloat(name string, v float64) error {
	err := s.set("set float", name, func(h Handle) error { return h.SetFloat(name, v) })
	if err == nil {
		s.log.WithFields(log.Fields{"param": name, "value": v}).Debug("set float")
	}
	return err
}

// SetBool sets a boolean parameter
func (s *Session) SetBool(name string, v bool) error {
	err := s.set("set bool", name, func(h Handle) error { return h.SetBool(name, v) })
	if err == nil {
		s.log.WithFields(log.Fields{"param": name, "value": v}).Debug("set bool")
	}
	return err
}

// SetEnum sets an enumeration parameter by numeric value
func (s *Session) SetEnum(name string, v uint32) error {
	err := s.set("set enum", name, func(h Handle) error { return h.SetEnum(name, v) })
	if err == nil {
		s.log.WithFields(log.Fields{"param": name, "value": v}).Debug("set enum")
	}
	return err
}

// SetEnumString sets an enumeration parameter by symbolic name
func (s *Session) SetEnumString(name, symbolic string) error {
	err := s.set("set enum", name, func(h Handle) error { return h.SetEnumString(name, symbolic) })
	if err == nil {
		s.log.WithFields(log.Fields{"param": name, "value": symbolic}).Debug("set enum")
	}
	return err
}

// SetString sets a string parameter
func (s *Session) SetString(name, v string) error {
	err := s.set("set string", name, func(h Handle) error { return h.SetString(name, v) })
	if err == nil {
		s.log.WithFields(log.Fields{"param": name, "value": v}).Debug("set string")
	}
	return err
}

// Execute runs a command parameter, such as TriggerSoftware.  Commands are
// allowed while streaming.
func (s *Session) Execute(name string) error {
	err := s.set("execute", name, func(h Handle) error { return h.Command(name) })
	if err == nil {
		s.log.WithField("command", name).Debug("executed")
	}
	return err
}

// GetInt reads an integer parameter and its limits
func (s *Session) GetInt(name string) (v IntValue, err error) {
	err = s.get("get int", name, func(h Handle) (err error) { v, err = h.GetInt(name); return })
	return
}

// GetFloat reads a floating point parameter and its limits
func (s *Session) GetFloat(name string) (v FloatValue, err error) {
	err = s.get("get float", name, func(h Handle) (err error) { v, err = h.GetFloat(name); return })
	return
}

// GetBool reads a boolean parameter
func (s *Session) GetBool(name string) (v bool, err error) {
	err = s.get("get bool", name, func(h Handle) (err error) { v, err = h.GetBool(name); return })
	return
}

// GetEnum reads an enumeration parameter and its supported members
func (s *Session) GetEnum(name string) (v EnumValue, err error) {
	err = s.get("get enum", name, func(h Handle) (err error) { v, err = h.GetEnum(name); return })
	return
}

// GetString reads a string parameter
func (s *Session) GetString(name string) (v string, err error) {
	err = s.get("get string", name, func(h Handle) (err error) { v, err = h.GetString(name); return })
	return
}

// Configure applies params in order, stopping at the first failure.  On failure
// the session is left in the state it had before the call, although the values
// set before the failing parameter remain on the device.  A call with no
// parameters marks an opened session as Configured, accepting the device
// defaults.
func (s *Session) Configure(params ...Parameter) error {
	before := s.State()
	for _, p := range params {
		if err := p.apply(s); err != nil {
			s.mu.Lock()
			if s.state == Configured && before == Opened {
				s.setState(Opened)
			}
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Opened:
		s.setState(Configured)
	case Configured, Streaming:
	default:
		return s.invalid("configure", Opened, Configured, Streaming)
	}
	return nil
}

// NegotiateOptimalPacketSize asks the runtime for the recommended stream packet
// size of a network camera and applies it.  The session must be Opened or
// Configured.  Failure to negotiate is not an error: it is returned as a
// TransportWarning, logged, and the camera keeps its default.  For cameras that
// are not on a network transport it does nothing and returns 0, nil.
func (s *Session) NegotiateOptimalPacketSize() (int, *TransportWarning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "negotiate packet size"
	var w *TransportWarning
	switch {
	case s.state != Opened && s.state != Configured:
		w = &TransportWarning{Op: op, Err: s.invalid(op, Opened, Configured)}
	case s.dev == nil || !s.desc.Layer().Network():
		return 0, nil
	}
	if w == nil {
		size, err := s.dev.OptimalPacketSize()
		switch {
		case err != nil:
			w = &TransportWarning{Op: op, Err: err}
		case size <= 0:
			w = &TransportWarning{Op: op, Err: fmt.Errorf("runtime recommended packet size %d", size)}
		default:
			if err := s.dev.SetInt(PacketSizeFeature, int64(size)); err != nil {
				w = &TransportWarning{Op: "set " + PacketSizeFeature, Err: err}
				break
			}
			if s.state == Opened {
				s.setState(Configured)
			}
			s.log.WithField("packetSize", size).Info("negotiated packet size")
			return size, nil
		}
	}
	s.log.WithError(w.Err).Warn(w.Op + " failed, keeping default")
	return 0, w
}

// SetImageNodeNum sets the number of buffers the runtime cycles through.  It
// must be called before StartGrabbing.
func (s *Session) SetImageNodeNum(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "set image node num"
	if s.state != Opened && s.state != Configured {
		return s.invalid(op, Opened, Configured)
	}
	if s.dev == nil {
		return &OpError{Op: op, Kind: ErrInvalidState, Err: errors.New("interfaces do not stream")}
	}
	if n < 1 {
		return &OpError{Op: op, Kind: ErrParameter, Err: fmt.Errorf("%d buffers", n)}
	}
	if err := s.dev.SetImageNodeNum(n); err != nil {
		return &OpError{Op: op, Kind: classify(err, ErrParameter), Err: err}
	}
	return nil
}

// onFrame is registered with the runtime for the life of a push mode stream
func (s *Session) onFrame(n FrameNotification) {
	s.deliver.RLock()
	defer s.deliver.RUnlock()
	if !s.streaming || s.sink == nil {
		return
	}
	s.sink.OnFrame(n)
}

// StartGrabbing begins acquisition.  The session must be Configured.
//
// With a non-nil sink, every frame is pushed to sink.OnFrame on a goroutine
// owned by the runtime until StopGrabbing returns.  The sink may call State,
// Descriptor and ID; it must not call any other Session method.  With a nil
// sink, frames are pulled with NextFrame.
func (s *Session) StartGrabbing(sink FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "start grabbing"
	if s.state != Configured {
		return s.invalid(op, Configured)
	}
	if s.dev == nil {
		return &OpError{Op: op, Kind: ErrInvalidState, Err: errors.New("interfaces do not stream")}
	}

	s.deliver.Lock()
	s.sink = sink
	s.pull = sink == nil
	s.streaming = true
	s.deliver.Unlock()

	var cb func(FrameNotification)
	if sink != nil {
		cb = s.onFrame
	}
	if err := s.dev.RegisterFrameCallback(cb); err != nil {
		s.gateOff()
		return opErr("register frame callback", nil, err)
	}
	if err := s.dev.StartGrabbing(); err != nil {
		s.gateOff()
		if sink != nil {
			s.dev.RegisterFrameCallback(nil)
		}
		return opErr(op, nil, err)
	}
	s.setState(Streaming)
	s.log.WithField("pull", sink == nil).Info("grabbing started")
	return nil
}

func (s *Session) gateOff() {
	s.deliver.Lock()
	s.streaming = false
	s.pull = false
	s.sink = nil
	s.deliver.Unlock()
}

// NextFrame waits up to timeout for the next frame of a pull mode stream and
// returns a copy of it.  If no frame arrives the error matches ErrTimeout.
// NextFrame may be called from a goroutine other than the one controlling the
// session.
func (s *Session) NextFrame(timeout time.Duration) (Frame, error) {
	s.deliver.RLock()
	defer s.deliver.RUnlock()
	const op = "next frame"
	if !s.streaming || !s.pull {
		return Frame{}, &OpError{Op: op, Kind: ErrInvalidState, Err: errors.New("not streaming in pull mode")}
	}
	n, release, err := s.dev.GetImageBuffer(timeout)
	if err != nil {
		return Frame{}, &OpError{Op: op, Kind: classify(err, nil), Err: err}
	}
	f := n.Copy()
	if release != nil {
		if err := release(); err != nil {
			s.log.WithError(err).Warn("free image buffer")
		}
	}
	return f, nil
}

// StopGrabbing ends acquisition and returns the session to Opened.  It returns
// once no sink invocation is in progress and none will follow.  Stopping a
// session that is not streaming does nothing.
func (s *Session) StopGrabbing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	if s.state != Streaming {
		return nil
	}
	if err := s.dev.StopGrabbing(); err != nil {
		return opErr("stop grabbing", nil, err)
	}
	// blocks until in-flight deliveries have returned
	push := s.sink != nil
	s.gateOff()
	if push {
		if err := s.dev.RegisterFrameCallback(nil); err != nil {
			s.log.WithError(err).Debug("unregister frame callback")
		}
	}
	s.setState(Opened)
	s.log.Info("grabbing stopped")
	return nil
}

// Close stops grabbing if needed, releases the handle and the device claim.
// It may be called in every state, any number of times.  The handle is
// released even if stopping fails; the first error is returned.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return nil
	}
	var errs []error
	if s.state == Streaming {
		if err := s.stopLocked(); err != nil {
			errs = append(errs, err)
			s.gateOff()
		}
	}
	if s.handle != nil {
		if err := s.handle.Close(); err != nil {
			errs = append(errs, opErr("close", nil, err))
		}
		s.handle = nil
		s.dev = nil
	}
	if s.desc != nil {
		s.cat.release(s.desc.Key(), s)
	}
	s.setState(Closed)
	s.log.Debug("session closed")
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
