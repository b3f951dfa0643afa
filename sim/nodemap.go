package sim

import (
	"strings"
	"sync"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/mvs"
)

// Feature is one simulated GenICam node
type Feature struct {
	Kind camera.ParamKind

	Int   camera.IntValue
	Float camera.FloatValue
	Bool  bool
	Enum  camera.EnumValue
	Str   string

	// Locked features refuse writes while the device is grabbing
	Locked bool

	// ReadOnly features refuse all writes
	ReadOnly bool

	// Exec runs when a command feature is executed
	Exec func() error
}

func intFeature(cur, min, max, inc int64) *Feature {
	return &Feature{Kind: camera.KindInt, Int: camera.IntValue{Cur: cur, Min: min, Max: max, Inc: inc}}
}

func floatFeature(cur, min, max float64) *Feature {
	return &Feature{Kind: camera.KindFloat, Float: camera.FloatValue{Cur: cur, Min: min, Max: max}}
}

func enumFeature(cur uint32, entries ...camera.EnumEntry) *Feature {
	return &Feature{Kind: camera.KindEnum, Enum: camera.EnumValue{Cur: cur, Supported: entries}}
}

func boolFeature(b bool) *Feature {
	return &Feature{Kind: camera.KindBool, Bool: b}
}

func stringFeature(s string) *Feature {
	return &Feature{Kind: camera.KindString, Str: s}
}

// nodeMap is a set of named features guarded by a mutex.  Errors are the SDK's
// status codes so that callers see the same failures as on hardware.
type nodeMap struct {
	mu       sync.Mutex
	features map[string]*Feature
	locked   func() bool
}

func (n *nodeMap) lookup(name string, kind camera.ParamKind) (*Feature, error) {
	f, ok := n.features[name]
	if !ok {
		return nil, mvs.EGCProperty
	}
	if f.Kind != kind {
		return nil, mvs.EParameter
	}
	return f, nil
}

func (n *nodeMap) writable(f *Feature) error {
	if f.ReadOnly {
		return mvs.EGCAccess
	}
	if f.Locked && n.locked != nil && n.locked() {
		return mvs.EGCAccess
	}
	return nil
}

// Feature returns a copy of the named feature, for inspection in tests
func (n *nodeMap) Feature(name string) (Feature, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, ok := n.features[name]
	if !ok {
		return Feature{}, false
	}
	return *f, true
}

// AddFeature adds or replaces a feature
func (n *nodeMap) AddFeature(name string, f *Feature) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.features[name] = f
}

func (n *nodeMap) GetInt(name string) (camera.IntValue, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindInt)
	if err != nil {
		return camera.IntValue{}, err
	}
	return f.Int, nil
}

func (n *nodeMap) SetInt(name string, v int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindInt)
	if err != nil {
		return err
	}
	if err := n.writable(f); err != nil {
		return err
	}
	if v < f.Int.Min || v > f.Int.Max {
		return mvs.EGCRange
	}
	if f.Int.Inc > 1 && (v-f.Int.Min)%f.Int.Inc != 0 {
		return mvs.EGCRange
	}
	f.Int.Cur = v
	return nil
}

func (n *nodeMap) GetFloat(name string) (camera.FloatValue, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindFloat)
	if err != nil {
		return camera.FloatValue{}, err
	}
	return f.Float, nil
}

func (n *nodeMap) SetFloat(name string, v float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindFloat)
	if err != nil {
		return err
	}
	if err := n.writable(f); err != nil {
		return err
	}
	if v < f.Float.Min || v > f.Float.Max {
		return mvs.EGCRange
	}
	f.Float.Cur = v
	return nil
}

func (n *nodeMap) GetBool(name string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindBool)
	if err != nil {
		return false, err
	}
	return f.Bool, nil
}

func (n *nodeMap) SetBool(name string, v bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindBool)
	if err != nil {
		return err
	}
	if err := n.writable(f); err != nil {
		return err
	}
	f.Bool = v
	return nil
}

func (n *nodeMap) GetEnum(name string) (camera.EnumValue, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindEnum)
	if err != nil {
		return camera.EnumValue{}, err
	}
	out := f.Enum
	out.Supported = append([]camera.EnumEntry(nil), f.Enum.Supported...)
	return out, nil
}

func (n *nodeMap) SetEnum(name string, v uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindEnum)
	if err != nil {
		return err
	}
	if err := n.writable(f); err != nil {
		return err
	}
	for _, e := range f.Enum.Supported {
		if e.Value == v {
			f.Enum.Cur = v
			return nil
		}
	}
	return mvs.EGCRange
}

func (n *nodeMap) SetEnumString(name, symbolic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindEnum)
	if err != nil {
		return err
	}
	if err := n.writable(f); err != nil {
		return err
	}
	for _, e := range f.Enum.Supported {
		if strings.EqualFold(e.Symbolic, symbolic) {
			f.Enum.Cur = e.Value
			return nil
		}
	}
	return mvs.EGCRange
}

func (n *nodeMap) GetString(name string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindString)
	if err != nil {
		return "", err
	}
	return f.Str, nil
}

func (n *nodeMap) SetString(name, v string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := n.lookup(name, camera.KindString)
	if err != nil {
		return err
	}
	if err := n.writable(f); err != nil {
		return err
	}
	f.Str = v
	return nil
}

func (n *nodeMap) Command(name string) error {
	n.mu.Lock()
	f, err := n.lookup(name, camera.KindCommand)
	n.mu.Unlock()
	if err != nil {
		return err
	}
	if f.Exec == nil {
		return nil
	}
	return f.Exec()
}

// enumSymbolic returns the symbolic name of the current value of an enum
func (n *nodeMap) enumSymbolic(name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, ok := n.features[name]
	if !ok || f.Kind != camera.KindEnum {
		return ""
	}
	for _, e := range f.Enum.Supported {
		if e.Value == f.Enum.Cur {
			return e.Symbolic
		}
	}
	return ""
}

func (n *nodeMap) intValue(name string) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if f, ok := n.features[name]; ok && f.Kind == camera.KindInt {
		return f.Int.Cur
	}
	return 0
}

func (n *nodeMap) floatValue(name string) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if f, ok := n.features[name]; ok && f.Kind == camera.KindFloat {
		return f.Float.Cur
	}
	return 0
}
