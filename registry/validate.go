// Package registry implements the routing core of the agentic MCP server.
// This file contains descriptor validation, performed once at registration,
// and argument validation with defaulting, performed on every call.
package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"unicode"
)

var validTypeTags = map[string]bool{
	TypeString:  true,
	TypeInteger: true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeArray:   true,
	TypeObject:  true,
}

// validateDescriptors checks an agent's declared tools before anything is
// committed to the routing table, and builds the name index for dispatch.
// Catching malformed declarations here keeps every later CallTool on a
// well-formed descriptor.
func validateDescriptors(agent string, tools []Descriptor) (map[string]int, error) {
	byName := make(map[string]int, len(tools))
	for i, d := range tools {
		if err := validateToolName(d.Name); err != nil {
			return nil, Errorf(CodeInvalidDescriptor, "agent %q: %v", agent, err)
		}
		if _, dup := byName[d.Name]; dup {
			return nil, Errorf(CodeInvalidDescriptor, "agent %q declares tool %q more than once", agent, d.Name)
		}
		seen := make(map[string]bool, len(d.Parameters))
		for _, p := range d.Parameters {
			if err := validateParam(d.Name, p); err != nil {
				return nil, Errorf(CodeInvalidDescriptor, "agent %q: %v", agent, err)
			}
			if seen[p.Name] {
				return nil, Errorf(CodeInvalidDescriptor,
					"agent %q: tool %q declares parameter %q more than once", agent, d.Name, p.Name)
			}
			seen[p.Name] = true
		}
		byName[d.Name] = i
	}
	return byName, nil
}

// validateToolName rejects names that are empty or contain characters that
// would collide with transport framing.
func validateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("tool name %q contains whitespace or control characters", name)
		}
	}
	return nil
}

func validateParam(tool string, p Param) error {
	if p.Name == "" {
		return fmt.Errorf("tool %q declares a parameter with an empty name", tool)
	}
	if !validTypeTags[p.Type] {
		return fmt.Errorf("tool %q parameter %q has unknown type %q", tool, p.Name, p.Type)
	}
	if p.Default != nil && !matchesType(p.Type, p.Default) {
		return fmt.Errorf("tool %q parameter %q: default value does not match type %s", tool, p.Name, p.Type)
	}
	for _, v := range p.Enum {
		if !matchesType(p.Type, v) {
			return fmt.Errorf("tool %q parameter %q: enum value %v does not match type %s", tool, p.Name, v, p.Type)
		}
	}
	if (p.Minimum != nil || p.Maximum != nil) && p.Type != TypeInteger && p.Type != TypeNumber {
		return fmt.Errorf("tool %q parameter %q: numeric bounds declared on type %s", tool, p.Name, p.Type)
	}
	// Defaults are injected without re-validation at call time, so they must
	// satisfy their own enum and bounds here.
	if p.Default != nil {
		if len(p.Enum) > 0 && !enumContains(p.Enum, p.Default) {
			return fmt.Errorf("tool %q parameter %q: default value %v is not among its enum values", tool, p.Name, p.Default)
		}
		if n, ok := asNumber(p.Default); ok {
			if p.Minimum != nil && n < *p.Minimum {
				return fmt.Errorf("tool %q parameter %q: default value %v is below its minimum", tool, p.Name, p.Default)
			}
			if p.Maximum != nil && n > *p.Maximum {
				return fmt.Errorf("tool %q parameter %q: default value %v is above its maximum", tool, p.Name, p.Default)
			}
		}
	}
	return nil
}

// prepareArguments validates args against the tool's declared parameters and
// returns a fresh map with declared defaults substituted for omitted
// optional parameters. The caller's map is never mutated.
//
// Parameters are scanned strictly in declared order and the first offending
// one is reported, so repeated calls with the same malformed input always
// name the same parameter regardless of map iteration order. Arguments the
// descriptor does not declare pass through untouched.
func prepareArguments(d Descriptor, args map[string]any) (map[string]any, error) {
	prepared := make(map[string]any, len(args)+len(d.Parameters))
	for k, v := range args {
		prepared[k] = v
	}

	for _, p := range d.Parameters {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return nil, Errorf(CodeInvalidArguments, "tool %q: missing required parameter %q", d.Name, p.Name)
			}
			if p.Default != nil {
				prepared[p.Name] = p.Default
			}
			continue
		}
		if !matchesType(p.Type, v) {
			return nil, Errorf(CodeInvalidArguments,
				"tool %q: parameter %q must be of type %s", d.Name, p.Name, p.Type)
		}
		if len(p.Enum) > 0 && !enumContains(p.Enum, v) {
			return nil, Errorf(CodeInvalidArguments,
				"tool %q: parameter %q must be one of %v", d.Name, p.Name, p.Enum)
		}
		if p.Minimum != nil || p.Maximum != nil {
			if n, ok := asNumber(v); ok {
				if p.Minimum != nil && n < *p.Minimum {
					return nil, Errorf(CodeInvalidArguments,
						"tool %q: parameter %q must be >= %v", d.Name, p.Name, *p.Minimum)
				}
				if p.Maximum != nil && n > *p.Maximum {
					return nil, Errorf(CodeInvalidArguments,
						"tool %q: parameter %q must be <= %v", d.Name, p.Name, *p.Maximum)
				}
			}
		}
	}
	return prepared, nil
}

// matchesType reports whether a decoded JSON value satisfies a type tag.
// Numeric checks accept every Go numeric kind plus json.Number, since
// arguments can arrive through encoding/json (float64), through
// json.Decoder.UseNumber, or constructed directly in Go code.
func matchesType(tag string, v any) bool {
	switch tag {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		n, ok := asNumber(v)
		return ok && n == math.Trunc(n)
	case TypeNumber:
		_, ok := asNumber(v)
		return ok
	case TypeArray:
		if v == nil {
			return false
		}
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case TypeObject:
		if v == nil {
			return false
		}
		return reflect.TypeOf(v).Kind() == reflect.Map
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// enumContains applies loose numeric equality so an enum declared with Go
// ints still matches a float64 decoded from JSON.
func enumContains(enum []any, v any) bool {
	vn, vIsNumber := asNumber(v)
	for _, allowed := range enum {
		if an, ok := asNumber(allowed); ok {
			if vIsNumber && an == vn {
				return true
			}
			continue
		}
		if reflect.DeepEqual(allowed, v) {
			return true
		}
	}
	return false
}
