package permissions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format is a manifest encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Manifest is a declarative permission set, loaded from YAML or TOML.
// Relative paths are taken against the working directory, and hosts and
// URLs are matched in normalized form, so entries are normalized when the
// manifest is applied.
//
//	hrtime: true
//	read_all: true
//	read: ["/srv/data/config.json"]
//	open:
//	  read: ["/srv/data/config.json"]
//	hosts: ["api.example.com"]
//	sys: ["hostname", "cpus"]
type Manifest struct {
	HRTime   bool `json:"hrtime,omitempty" yaml:"hrtime" toml:"hrtime"`
	Exec     bool `json:"exec,omitempty" yaml:"exec" toml:"exec"`
	ReadAll  bool `json:"read_all,omitempty" yaml:"read_all" toml:"read_all"`
	WriteAll bool `json:"write_all,omitempty" yaml:"write_all" toml:"write_all"`

	URLs  []string `json:"urls,omitempty" yaml:"urls" toml:"urls"`
	Hosts []string `json:"hosts,omitempty" yaml:"hosts" toml:"hosts"`
	Env   []string `json:"env,omitempty" yaml:"env" toml:"env"`
	Sys   []string `json:"sys,omitempty" yaml:"sys" toml:"sys"`
	Read  []string `json:"read,omitempty" yaml:"read" toml:"read"`
	Write []string `json:"write,omitempty" yaml:"write" toml:"write"`

	Open OpenRules `json:"open,omitempty" yaml:"open" toml:"open"`

	// Strict rejects sys keys outside the known set
	Strict bool `json:"strict,omitempty" yaml:"strict" toml:"strict"`
}

// OpenRules lists paths that may be opened for reading and writing
type OpenRules struct {
	Read  []string `json:"read,omitempty" yaml:"read" toml:"read"`
	Write []string `json:"write,omitempty" yaml:"write" toml:"write"`
}

// FormatFromPath picks a format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q", filepath.Ext(path))
	}
}

// LoadManifest reads and parses a manifest file
func LoadManifest(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data, format)
}

// ParseManifest checks the document against the manifest schema, then
// decodes and validates it
func ParseManifest(data []byte, format Format) (*Manifest, error) {
	if err := validateDocument(data, format); err != nil {
		return nil, err
	}

	var m Manifest
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse yaml manifest: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse toml manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for unusable entries
func (m *Manifest) Validate() error {
	for _, lists := range [][]string{m.URLs, m.Hosts, m.Env, m.Read, m.Write, m.Open.Read, m.Open.Write} {
		for _, v := range lists {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("manifest contains an empty entry")
			}
		}
	}
	for _, u := range m.URLs {
		if _, err := NormalizeEntry(CategoryURL, u); err != nil {
			return err
		}
	}
	for _, h := range m.Hosts {
		if _, err := NormalizeEntry(CategoryHost, h); err != nil {
			return err
		}
	}
	if m.Strict {
		for _, s := range m.Sys {
			if NewSystemKind(s).IsOther() {
				return fmt.Errorf("unknown sys permission %q", s)
			}
		}
	}
	return nil
}

// Apply grants everything in the manifest on an allowlist.
// Existing grants are kept; flags are only ever turned on.
func (m *Manifest) Apply(a *Allowlist) {
	if m.HRTime {
		a.SetHRTime(true)
	}
	if m.Exec {
		a.SetExec(true)
	}
	if m.ReadAll {
		a.SetReadAll(true)
	}
	if m.WriteAll {
		a.SetWriteAll(true)
	}
	for _, u := range m.URLs {
		a.AllowURL(normalized(CategoryURL, u))
	}
	for _, h := range m.Hosts {
		a.AllowHost(normalized(CategoryHost, h))
	}
	for _, e := range m.Env {
		a.AllowEnv(e)
	}
	for _, s := range m.Sys {
		a.AllowSys(NewSystemKind(s))
	}
	for _, p := range m.Read {
		a.AllowRead(normalized(CategoryRead, p))
	}
	for _, p := range m.Write {
		a.AllowWrite(normalized(CategoryWrite, p))
	}
	for _, p := range m.Open.Read {
		a.AllowOpen(normalized(CategoryOpen, p), true, false)
	}
	for _, p := range m.Open.Write {
		a.AllowOpen(normalized(CategoryOpen, p), false, true)
	}
}

// normalized falls back to the entry as written; Validate reports entries
// that cannot be normalized
func normalized(category Category, entry string) string {
	if n, err := NormalizeEntry(category, entry); err == nil {
		return n
	}
	return entry
}

// Allowlist builds a fresh allowlist from the manifest
func (m *Manifest) Allowlist() *Allowlist {
	a := NewAllowlist()
	m.Apply(a)
	return a
}
