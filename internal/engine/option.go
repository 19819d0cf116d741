package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// OptionType mirrors the tunable kinds engines declare during startup.
type OptionType int

const (
	OptionString OptionType = iota
	OptionCheck
	OptionSpin
	OptionCombo
	OptionButton
)

func (t OptionType) String() string {
	switch t {
	case OptionCheck:
		return "check"
	case OptionSpin:
		return "spin"
	case OptionCombo:
		return "combo"
	case OptionButton:
		return "button"
	default:
		return "string"
	}
}

// Option is one engine-declared tunable. Values stay in their wire text
// form; Validate gates what may be applied to the live process.
type Option struct {
	Name    string
	Type    OptionType
	Value   string
	Default string
	Min     int // spin only
	Max     int // spin only
	Vars    []string
}

func (o *Option) Validate(value string) bool {
	switch o.Type {
	case OptionCheck:
		v := strings.ToLower(strings.TrimSpace(value))
		return v == "true" || v == "false"
	case OptionSpin:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return false
		}
		return n >= o.Min && n <= o.Max
	case OptionCombo:
		for _, v := range o.Vars {
			if strings.EqualFold(v, strings.TrimSpace(value)) {
				return true
			}
		}
		return false
	case OptionButton:
		return strings.TrimSpace(value) == ""
	default:
		return true
	}
}

func (o *Option) String() string {
	switch o.Type {
	case OptionSpin:
		return fmt.Sprintf("%s (spin %d..%d) = %s", o.Name, o.Min, o.Max, o.Value)
	case OptionCombo:
		return fmt.Sprintf("%s (combo %s) = %s", o.Name, strings.Join(o.Vars, "/"), o.Value)
	default:
		return fmt.Sprintf("%s (%s) = %s", o.Name, o.Type, o.Value)
	}
}

// registry keys options by name; redeclaring a name replaces the prior
// definition.
type registry struct {
	byName map[string]*Option
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]*Option)}
}

func (r *registry) declare(o *Option) {
	r.byName[o.Name] = o
}

func (r *registry) get(name string) *Option {
	return r.byName[name]
}
