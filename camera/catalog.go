package camera

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Catalog lists the interfaces and devices visible to a Runtime and hands out
// Sessions.  It remembers which physical devices are held by open sessions so
// that no device is opened twice.
type Catalog struct {
	rt Runtime

	mu          sync.Mutex
	initialized bool
	claims      map[string]*Session
}

// NewCatalog returns a Catalog over rt.  Initialize must be called before use.
func NewCatalog(rt Runtime) *Catalog {
	return &Catalog{rt: rt, claims: make(map[string]*Session)}
}

// Initialize initializes the runtime.  Calling it again is a no-op.
func (c *Catalog) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.rt.Initialize(); err != nil {
		return opErr("initialize SDK", nil, err)
	}
	c.initialized = true
	log.WithField("version", c.rt.Version()).Debug("camera runtime initialized")
	return nil
}

// Finalize closes every session still open and then finalizes the runtime.
// It is safe to call on every exit path; only the first call after a
// successful Initialize does anything.
func (c *Catalog) Finalize() error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil
	}
	open := make([]*Session, 0, len(c.claims))
	for _, s := range c.claims {
		open = append(open, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range open {
		log.WithField("session", s.ID()).Warn("session still open at finalize, closing it")
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	if err := c.rt.Finalize(); err != nil {
		errs = append(errs, opErr("finalize SDK", nil, err))
	}
	log.Debug("camera runtime finalized")
	return errors.Join(errs...)
}

// Version is the version of the runtime
func (c *Catalog) Version() string {
	return c.rt.Version()
}

func (c *Catalog) ready(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return &OpError{Op: op, Kind: ErrInvalidState, Err: errors.New("SDK not initialized")}
	}
	return nil
}

// ListInterfaces lists the frame grabber interfaces whose transport is in mask.
// An empty list is not an error.
func (c *Catalog) ListInterfaces(mask Transport) ([]InterfaceDescriptor, error) {
	if mask == 0 {
		return []InterfaceDescriptor{}, nil
	}
	if err := c.ready("enumerate interfaces"); err != nil {
		return nil, err
	}
	ifaces, err := c.rt.EnumInterfaces(mask)
	if err != nil {
		return nil, &OpError{Op: "enumerate interfaces", Kind: ErrEnumeration, Err: err}
	}
	for i := range ifaces {
		ifaces[i].Index = i
	}
	log.WithFields(log.Fields{"mask": mask, "count": len(ifaces)}).Debug("enumerated interfaces")
	return ifaces, nil
}

// ListDevices lists the cameras whose transport is in mask.  An empty list is
// not an error.
func (c *Catalog) ListDevices(mask Transport) ([]DeviceDescriptor, error) {
	if mask == 0 {
		return []DeviceDescriptor{}, nil
	}
	if err := c.ready("enumerate devices"); err != nil {
		return nil, err
	}
	devs, err := c.rt.EnumDevices(mask)
	if err != nil {
		return nil, &OpError{Op: "enumerate devices", Kind: ErrEnumeration, Err: err}
	}
	for i := range devs {
		devs[i].Index = i
	}
	log.WithFields(log.Fields{"mask": mask, "count": len(devs)}).Debug("enumerated devices")
	return devs, nil
}

// NewSession returns a Session in the Created state
func (c *Catalog) NewSession() *Session {
	return newSession(c)
}

// Holder returns the session currently holding the device identified by key
func (c *Catalog) Holder(key string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.claims[key]
	return s, ok
}

func (c *Catalog) claim(key string, s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return errors.New("SDK not initialized")
	}
	if holder, ok := c.claims[key]; ok && holder != s {
		return ErrDeviceBusy
	}
	c.claims[key] = s
	return nil
}

func (c *Catalog) release(key string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if holder, ok := c.claims[key]; ok && holder == s {
		delete(c.claims, key)
	}
}
