package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sync"
	"unicode/utf8"

	"github.com/codefionn/sockrpc/internal/protocol"
)

// Engine validates requests and responses against a manifest. The manifest
// can be swapped at runtime (hot reload); validation in flight keeps using
// the manifest it started with.
type Engine struct {
	mu       sync.RWMutex
	manifest *Manifest
}

// NewEngine creates a validation engine for the given manifest.
func NewEngine(m *Manifest) *Engine {
	return &Engine{manifest: m}
}

// Current returns the manifest in service.
func (e *Engine) Current() *Manifest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.manifest
}

// Reload swaps in a new manifest. Requests validated after Reload returns
// see the new manifest.
func (e *Engine) Reload(m *Manifest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manifest = m
}

// ValidateRequest checks args against the declared specs of command and
// returns the normalized argument map with defaults substituted. A command
// absent from the manifest fails with a method-not-found error before any
// argument is examined. Arguments not declared in the manifest pass
// through untouched.
func (e *Engine) ValidateRequest(command string, args map[string]interface{}) (map[string]interface{}, *protocol.StructuredError) {
	m := e.Current()

	cmd, ok := m.Commands[command]
	if !ok {
		return nil, protocol.NewError(protocol.CodeMethodNotFound).
			WithData("command", command)
	}

	normalized := make(map[string]interface{}, len(args)+len(cmd.Args))
	for k, v := range args {
		normalized[k] = v
	}

	// Sorted order keeps the rejected field deterministic when several
	// arguments are invalid at once.
	for _, name := range sortedSpecNames(cmd.Args) {
		spec := cmd.Args[name]
		value, present := normalized[name]
		if !present {
			if spec.Required {
				return nil, protocol.NewError(protocol.CodeInvalidParams).
					WithField(name).
					WithData("reason", "missing required argument")
			}
			if spec.DefaultValue != nil {
				normalized[name] = spec.DefaultValue
			}
			continue
		}
		if serr := m.validateValue(spec, name, value); serr != nil {
			return nil, serr
		}
	}

	return normalized, nil
}

// ValidateResponse checks a handler's result against the command's
// response spec. The check is advisory: a violation is reported as a
// validation-failed error for logging, and the caller delivers the
// response regardless. A command without a response spec passes.
func (e *Engine) ValidateResponse(command string, result interface{}) *protocol.StructuredError {
	m := e.Current()

	cmd, ok := m.Commands[command]
	if !ok || cmd.Response == nil {
		return nil
	}
	if serr := m.validateValue(cmd.Response, "result", result); serr != nil {
		out := protocol.NewError(protocol.CodeValidationFailed).
			WithData("command", command)
		for k, v := range serr.Data {
			out.WithData(k, v)
		}
		return out
	}
	return nil
}

// validateValue checks one value against one spec. field is the full path
// used in rejection errors ("name", "tags[2]", "owner.email").
func (m *Manifest) validateValue(spec *ArgSpec, field string, value interface{}) *protocol.StructuredError {
	switch spec.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return typeError(field, "must be a string", spec.Type)
		}
		return m.checkStringConstraints(spec, field, s)

	case TypeInteger:
		f, ok := numericValue(value)
		if !ok || f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return typeError(field, "must be an integer", spec.Type)
		}
		return m.checkNumericConstraints(spec, field, f, value)

	case TypeNumber:
		f, ok := numericValue(value)
		if !ok {
			return typeError(field, "must be a number", spec.Type)
		}
		return m.checkNumericConstraints(spec, field, f, value)

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeError(field, "must be a boolean", spec.Type)
		}
		return m.checkEnum(spec, field, value)

	case TypeArray:
		arr, ok := value.([]interface{})
		if !ok {
			return typeError(field, "must be an array", spec.Type)
		}
		return m.checkArray(spec, field, arr)

	case TypeObject:
		if _, ok := value.(map[string]interface{}); !ok {
			return typeError(field, "must be an object", spec.Type)
		}
		return m.checkEnum(spec, field, value)

	case TypeNull:
		if value != nil {
			return typeError(field, "must be null", spec.Type)
		}
		return nil

	default:
		return m.validateModelRef(spec, field, value)
	}
}

func (m *Manifest) checkStringConstraints(spec *ArgSpec, field, s string) *protocol.StructuredError {
	c := spec.Validation
	if c == nil {
		return nil
	}

	// Length bounds count code points, matching the other runtimes that
	// speak this protocol.
	length := utf8.RuneCountInString(s)
	if c.MinLength != nil && length < *c.MinLength {
		return protocol.NewError(protocol.CodeInvalidParams).
			WithField(field).
			WithData("reason", fmt.Sprintf("must be at least %d characters", *c.MinLength)).
			WithData("minLength", *c.MinLength)
	}
	if c.MaxLength != nil && length > *c.MaxLength {
		return protocol.NewError(protocol.CodeInvalidParams).
			WithField(field).
			WithData("reason", fmt.Sprintf("must not exceed %d characters", *c.MaxLength)).
			WithData("maxLength", *c.MaxLength)
	}

	if c.Pattern != "" {
		re, err := c.regex()
		if err != nil {
			return protocol.NewError(protocol.CodeConfigurationError).
				WithField(field).
				WithData("reason", fmt.Sprintf("pattern does not compile: %v", err))
		}
		if !re.MatchString(s) {
			return protocol.NewError(protocol.CodeInvalidParams).
				WithField(field).
				WithData("reason", fmt.Sprintf("does not match pattern %q", c.Pattern)).
				WithData("pattern", c.Pattern)
		}
	}

	return m.checkEnum(spec, field, s)
}

func (m *Manifest) checkNumericConstraints(spec *ArgSpec, field string, f float64, original interface{}) *protocol.StructuredError {
	c := spec.Validation
	if c == nil {
		return nil
	}

	if c.Minimum != nil && f < *c.Minimum {
		return protocol.NewError(protocol.CodeInvalidParams).
			WithField(field).
			WithData("reason", fmt.Sprintf("must be at least %v", *c.Minimum)).
			WithData("minimum", *c.Minimum)
	}
	if c.Maximum != nil && f > *c.Maximum {
		return protocol.NewError(protocol.CodeInvalidParams).
			WithField(field).
			WithData("reason", fmt.Sprintf("must not exceed %v", *c.Maximum)).
			WithData("maximum", *c.Maximum)
	}

	return m.checkEnum(spec, field, original)
}

func (m *Manifest) checkArray(spec *ArgSpec, field string, arr []interface{}) *protocol.StructuredError {
	c := spec.Validation
	if c != nil {
		if c.MinLength != nil && len(arr) < *c.MinLength {
			return protocol.NewError(protocol.CodeInvalidParams).
				WithField(field).
				WithData("reason", fmt.Sprintf("must contain at least %d elements", *c.MinLength)).
				WithData("minLength", *c.MinLength)
		}
		if c.MaxLength != nil && len(arr) > *c.MaxLength {
			return protocol.NewError(protocol.CodeInvalidParams).
				WithField(field).
				WithData("reason", fmt.Sprintf("must not contain more than %d elements", *c.MaxLength)).
				WithData("maxLength", *c.MaxLength)
		}
	}
	if serr := m.checkEnum(spec, field, arr); serr != nil {
		return serr
	}

	if spec.Items != nil {
		for i, element := range arr {
			if serr := m.validateValue(spec.Items, fmt.Sprintf("%s[%d]", field, i), element); serr != nil {
				return serr
			}
		}
	}
	return nil
}

// validateModelRef resolves spec.Type as a model name and validates value
// as an object against the model's properties. A property is required when
// its own spec says so or the model's required list names it.
func (m *Manifest) validateModelRef(spec *ArgSpec, field string, value interface{}) *protocol.StructuredError {
	model, ok := m.Models[spec.Type]
	if !ok {
		return protocol.NewError(protocol.CodeConfigurationError).
			WithField(field).
			WithData("reason", fmt.Sprintf("references unknown model %s", spec.Type))
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return typeError(field, fmt.Sprintf("must be an object (%s)", spec.Type), spec.Type)
	}

	required := make(map[string]bool, len(model.Required))
	for _, name := range model.Required {
		required[name] = true
	}

	for _, name := range sortedSpecNames(model.Properties) {
		propSpec := model.Properties[name]
		path := field + "." + name
		propValue, present := obj[name]
		if !present {
			if propSpec.Required || required[name] {
				return protocol.NewError(protocol.CodeInvalidParams).
					WithField(path).
					WithData("reason", "missing required argument")
			}
			continue
		}
		if serr := m.validateValue(propSpec, path, propValue); serr != nil {
			return serr
		}
	}
	return nil
}

func (m *Manifest) checkEnum(spec *ArgSpec, field string, value interface{}) *protocol.StructuredError {
	c := spec.Validation
	if c == nil || len(c.Enum) == 0 {
		return nil
	}
	for _, allowed := range c.Enum {
		if literalEqual(value, allowed) {
			return nil
		}
	}
	return protocol.NewError(protocol.CodeInvalidParams).
		WithField(field).
		WithData("reason", "must be one of the allowed values").
		WithData("allowed", c.Enum)
}

func typeError(field, reason, expected string) *protocol.StructuredError {
	return protocol.NewError(protocol.CodeInvalidParams).
		WithField(field).
		WithData("reason", reason).
		WithData("expected", expected)
}

// numericValue coerces the numeric representations that JSON and YAML
// decoding produce into a float64.
func numericValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// literalEqual compares a runtime value with a manifest literal, treating
// all numeric representations of the same value as equal (YAML decodes 3
// as int, JSON as float64).
func literalEqual(a, b interface{}) bool {
	fa, aNum := numericValue(a)
	fb, bNum := numericValue(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}
