package camera

import (
	"fmt"
	"strconv"
)

// ParamKind is the GenICam interface type of a parameter
type ParamKind int

const (
	// KindInt is an IInteger feature
	KindInt ParamKind = iota + 1

	// KindFloat is an IFloat feature
	KindFloat

	// KindBool is an IBoolean feature
	KindBool

	// KindEnum is an IEnumeration feature set by value
	KindEnum

	// KindEnumString is an IEnumeration feature set by symbolic name
	KindEnumString

	// KindString is an IString feature
	KindString

	// KindCommand is an ICommand feature
	KindCommand

	// KindNumber is a whole number applied to an IInteger or IFloat feature,
	// whichever the feature turns out to be
	KindNumber
)

func (k ParamKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindEnumString:
		return "enumstring"
	case KindString:
		return "string"
	case KindCommand:
		return "command"
	case KindNumber:
		return "number"
	}
	return "ParamKind(" + strconv.Itoa(int(k)) + ")"
}

// Parameter is one named setting applied by Session.Configure
type Parameter struct {
	Name  string
	Kind  ParamKind
	Int   int64
	Float float64
	Bool  bool
	Enum  uint32
	Str   string
}

// Int is an integer parameter
func Int(name string, v int64) Parameter { return Parameter{Name: name, Kind: KindInt, Int: v} }

// Float is a floating point parameter
func Float(name string, v float64) Parameter {
	return Parameter{Name: name, Kind: KindFloat, Float: v}
}

// Bool is a boolean parameter
func Bool(name string, v bool) Parameter { return Parameter{Name: name, Kind: KindBool, Bool: v} }

// Enum is an enumeration parameter given by value
func Enum(name string, v uint32) Parameter { return Parameter{Name: name, Kind: KindEnum, Enum: v} }

// EnumString is an enumeration parameter given by symbolic name
func EnumString(name, symbolic string) Parameter {
	return Parameter{Name: name, Kind: KindEnumString, Str: symbolic}
}

// Command is a command to execute
func Command(name string) Parameter { return Parameter{Name: name, Kind: KindCommand} }

// Number is a whole number for an integer or floating point feature
func Number(name string, v int64) Parameter { return Parameter{Name: name, Kind: KindNumber, Int: v} }

// ParamFromValue builds a parameter from a loosely typed value, as decoded from
// a YAML or JSON config.  Strings are taken as enumeration symbolics, since
// they are by far the most common string-valued settings on a camera.  Whole
// numbers, including JSON numbers decoded as float64, become a Number, typed
// against the feature when applied.
func ParamFromValue(name string, v interface{}) (Parameter, error) {
	switch x := v.(type) {
	case bool:
		return Bool(name, x), nil
	case int:
		return Number(name, int64(x)), nil
	case int64:
		return Number(name, x), nil
	case uint32:
		return Enum(name, x), nil
	case float64:
		if x == float64(int64(x)) {
			return Number(name, int64(x)), nil
		}
		return Float(name, x), nil
	case string:
		return EnumString(name, x), nil
	case nil:
		return Command(name), nil
	}
	return Parameter{}, &OpError{Op: "parameter " + name, Kind: ErrParameter, Err: fmt.Errorf("unsupported value type %T", v)}
}

func (p Parameter) String() string {
	switch p.Kind {
	case KindInt, KindNumber:
		return fmt.Sprintf("%s=%d", p.Name, p.Int)
	case KindFloat:
		return fmt.Sprintf("%s=%g", p.Name, p.Float)
	case KindBool:
		return fmt.Sprintf("%s=%t", p.Name, p.Bool)
	case KindEnum:
		return fmt.Sprintf("%s=%d", p.Name, p.Enum)
	case KindEnumString, KindString:
		return fmt.Sprintf("%s=%s", p.Name, p.Str)
	case KindCommand:
		return p.Name + "()"
	}
	return p.Name + "=?"
}

func (p Parameter) apply(s *Session) error {
	switch p.Kind {
	case KindInt:
		return s.SetInt(p.Name, p.Int)
	case KindFloat:
		return s.SetFloat(p.Name, p.Float)
	case KindBool:
		return s.SetBool(p.Name, p.Bool)
	case KindEnum:
		return s.SetEnum(p.Name, p.Enum)
	case KindEnumString:
		return s.SetEnumString(p.Name, p.Str)
	case KindString:
		return s.SetString(p.Name, p.Str)
	case KindCommand:
		return s.Execute(p.Name)
	case KindNumber:
		if _, err := s.GetFloat(p.Name); err == nil {
			return s.SetFloat(p.Name, float64(p.Int))
		}
		return s.SetInt(p.Name, p.Int)
	}
	return &OpError{Op: "configure " + p.Name, Kind: ErrParameter, Err: fmt.Errorf("unknown parameter kind %s", p.Kind)}
}
