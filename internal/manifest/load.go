package manifest

import (
	"os"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/codefionn/sockrpc/internal/protocol"
)

// Parse decodes and checks a manifest document. The returned manifest is
// ready for an Engine; any parse or consistency failure comes back as a
// configuration error.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, protocol.Errorf(protocol.CodeConfigurationError,
			"failed to parse manifest: %v", err)
	}
	if err := m.normalize(); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	m.fingerprint = xxhash.Sum64(data)
	return &m, nil
}

// LoadFile reads and parses the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeConfigurationError,
			"failed to read manifest %s: %v", path, err)
	}
	return Parse(data)
}
