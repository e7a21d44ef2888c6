package manifest

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/codefionn/sockrpc/internal/protocol"
)

// Built-in argument types. Any other type string refers to a named model.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// Manifest is the root schema document.
type Manifest struct {
	Version  string              `yaml:"version"`
	Name     string              `yaml:"name,omitempty"`
	Models   map[string]*Model   `yaml:"models,omitempty"`
	Commands map[string]*Command `yaml:"commands,omitempty"`
	// Channels is the legacy alias for Commands, folded in by normalize.
	Channels map[string]*Command `yaml:"channels,omitempty"`

	fingerprint uint64
}

// Model is a reusable object shape referenced by name from argument specs.
type Model struct {
	Description string              `yaml:"description,omitempty"`
	Properties  map[string]*ArgSpec `yaml:"properties,omitempty"`
	Required    []string            `yaml:"required,omitempty"`
}

// Command describes one callable command: its arguments, the shape of a
// successful result, and the error codes it documents.
type Command struct {
	Description string              `yaml:"description,omitempty"`
	Args        map[string]*ArgSpec `yaml:"args,omitempty"`
	Response    *ArgSpec            `yaml:"response,omitempty"`
	ErrorCodes  []string            `yaml:"errorCodes,omitempty"`
}

// ArgSpec declares one argument or nested value. Items holds the element
// spec for array types; the indirection keeps the type recursive.
type ArgSpec struct {
	Type         string       `yaml:"type"`
	Required     bool         `yaml:"required,omitempty"`
	Description  string       `yaml:"description,omitempty"`
	DefaultValue interface{}  `yaml:"defaultValue,omitempty"`
	Validation   *Constraints `yaml:"validation,omitempty"`
	Items        *ArgSpec     `yaml:"items,omitempty"`
}

// Constraints are the optional per-value validation bounds. An absent
// field leaves that axis unconstrained.
type Constraints struct {
	MinLength *int          `yaml:"minLength,omitempty"`
	MaxLength *int          `yaml:"maxLength,omitempty"`
	Pattern   string        `yaml:"pattern,omitempty"`
	Minimum   *float64      `yaml:"minimum,omitempty"`
	Maximum   *float64      `yaml:"maximum,omitempty"`
	Enum      []interface{} `yaml:"enum,omitempty"`

	compiled *regexp.Regexp
}

// regex returns the compiled pattern, compiling on the fly for manifests
// that were built in code and never went through Check.
func (c *Constraints) regex() (*regexp.Regexp, error) {
	if c.compiled != nil {
		return c.compiled, nil
	}
	return regexp.Compile(c.Pattern)
}

// Fingerprint returns the content hash of the document this manifest was
// parsed from, or zero for manifests built in code.
func (m *Manifest) Fingerprint() uint64 {
	return m.fingerprint
}

// IsBuiltinType reports whether t names one of the built-in types.
func IsBuiltinType(t string) bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeNull:
		return true
	}
	return false
}

// normalize folds the legacy channels alias into Commands and makes the
// command map usable when the document declared none.
func (m *Manifest) normalize() error {
	if m.Channels != nil {
		if m.Commands != nil {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"manifest declares both commands and channels")
		}
		m.Commands = m.Channels
		m.Channels = nil
	}
	if m.Commands == nil {
		m.Commands = make(map[string]*Command)
	}
	return nil
}

// Check verifies the manifest is internally consistent: every model
// reference resolves, constraints are coherent and applicable to their
// declared type, patterns compile, and defaults satisfy their own specs.
// Load rejects a manifest failing any of these with a configuration error.
func (m *Manifest) Check() error {
	if m.Channels != nil && m.Commands != nil && len(m.Commands) > 0 {
		return protocol.Errorf(protocol.CodeConfigurationError,
			"manifest declares both commands and channels")
	}

	for _, name := range sortedModelNames(m.Models) {
		model := m.Models[name]
		if model == nil {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"model %s has no definition", name)
		}
		for _, prop := range sortedSpecNames(model.Properties) {
			if err := m.checkSpec(name+"."+prop, model.Properties[prop]); err != nil {
				return err
			}
		}
		for _, req := range model.Required {
			if _, ok := model.Properties[req]; !ok {
				return protocol.Errorf(protocol.CodeConfigurationError,
					"model %s requires unknown property %s", name, req)
			}
		}
	}

	for _, name := range sortedCommandNames(m.Commands) {
		cmd := m.Commands[name]
		if cmd == nil {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"command %s has no definition", name)
		}
		for _, arg := range sortedSpecNames(cmd.Args) {
			if err := m.checkSpec(name+"."+arg, cmd.Args[arg]); err != nil {
				return err
			}
		}
		if cmd.Response != nil {
			if err := m.checkSpec(name+".response", cmd.Response); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *Manifest) checkSpec(path string, spec *ArgSpec) error {
	if spec == nil {
		return protocol.Errorf(protocol.CodeConfigurationError,
			"%s has no spec", path)
	}
	if spec.Type == "" {
		return protocol.Errorf(protocol.CodeConfigurationError,
			"%s is missing a type", path)
	}
	if !IsBuiltinType(spec.Type) {
		if _, ok := m.Models[spec.Type]; !ok {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s references unknown model %s", path, spec.Type)
		}
	}
	if spec.Items != nil {
		if spec.Type != TypeArray {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s declares items but is not an array", path)
		}
		if err := m.checkSpec(path+"[]", spec.Items); err != nil {
			return err
		}
	}

	if err := m.checkConstraints(path, spec); err != nil {
		return err
	}

	if spec.DefaultValue != nil {
		if serr := m.validateValue(spec, path, spec.DefaultValue); serr != nil {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s default value is invalid: %s", path, reasonOf(serr))
		}
	}

	return nil
}

func (m *Manifest) checkConstraints(path string, spec *ArgSpec) error {
	c := spec.Validation
	if c == nil {
		return nil
	}

	lengthy := spec.Type == TypeString || spec.Type == TypeArray
	numeric := spec.Type == TypeInteger || spec.Type == TypeNumber

	if c.MinLength != nil || c.MaxLength != nil {
		if !lengthy {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s declares length bounds but is not a string or array", path)
		}
		if c.MinLength != nil && *c.MinLength < 0 {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s minLength is negative", path)
		}
		if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s minLength %d exceeds maxLength %d", path, *c.MinLength, *c.MaxLength)
		}
	}

	if c.Pattern != "" {
		if spec.Type != TypeString {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s declares a pattern but is not a string", path)
		}
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s pattern does not compile: %v", path, err)
		}
		c.compiled = re
	}

	if c.Minimum != nil || c.Maximum != nil {
		if !numeric {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s declares numeric bounds but is not an integer or number", path)
		}
		if c.Minimum != nil && c.Maximum != nil && *c.Minimum > *c.Maximum {
			return protocol.Errorf(protocol.CodeConfigurationError,
				"%s minimum %v exceeds maximum %v", path, *c.Minimum, *c.Maximum)
		}
	}

	if c.Enum != nil && len(c.Enum) == 0 {
		return protocol.Errorf(protocol.CodeConfigurationError,
			"%s declares an empty enum", path)
	}

	return nil
}

// reasonOf extracts the human-readable rejection detail from a validation
// error, falling back to its message.
func reasonOf(serr *protocol.StructuredError) string {
	if serr.Data != nil {
		if reason, ok := serr.Data["reason"].(string); ok {
			return reason
		}
	}
	return serr.Message
}

func sortedCommandNames(m map[string]*Command) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedModelNames(m map[string]*Model) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedSpecNames(m map[string]*ArgSpec) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String identifies the manifest in logs.
func (m *Manifest) String() string {
	name := m.Name
	if name == "" {
		name = "manifest"
	}
	return fmt.Sprintf("%s v%s (%d commands)", name, m.Version, len(m.Commands))
}
