package permissions

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlManifest = `
hrtime: true
read_all: true
read:
  - /srv/data/config.json
open:
  read:
    - /srv/data/config.json
  write:
    - /srv/data/out.log
hosts:
  - api.example.com
env:
  - HOME
sys:
  - hostname
  - cpus
`

const tomlManifest = `
exec = true
write_all = true
write = ["/srv/data/out.log"]
urls = ["https://api.example.com/v1"]
sys = ["uid"]

[open]
write = ["/srv/data/out.log"]
`

func TestParseManifestYAML(t *testing.T) {
	m, err := ParseManifest([]byte(yamlManifest), FormatYAML)
	require.NoError(t, err)

	assert.True(t, m.HRTime)
	assert.True(t, m.ReadAll)
	assert.Equal(t, []string{"/srv/data/config.json"}, m.Read)
	assert.Equal(t, []string{"/srv/data/out.log"}, m.Open.Write)
	assert.Equal(t, []string{"hostname", "cpus"}, m.Sys)

	a := m.Allowlist()
	_, err = a.CheckRead("/srv/data/config.json", "fs.read")
	assert.NoError(t, err)
	_, err = a.CheckOpen("/srv/data/out.log", Write, "fs.open")
	assert.NoError(t, err)
	assert.NoError(t, a.CheckHost("api.example.com", 443, "net"))
	assert.NoError(t, a.CheckSys(SysCpus, "os.cpus"))
	assert.Error(t, a.CheckExec())
}

func TestParseManifestTOML(t *testing.T) {
	m, err := ParseManifest([]byte(tomlManifest), FormatTOML)
	require.NoError(t, err)

	a := m.Allowlist()
	assert.NoError(t, a.CheckExec())
	_, err = a.CheckWrite("/srv/data/out.log", "fs.write")
	assert.NoError(t, err)
	assert.NoError(t, a.CheckSys(SysUid, "os.uid"))
	assert.Equal(t, []string{"https://api.example.com/v1"}, a.Snapshot().URLs)
}

func TestManifestValidate(t *testing.T) {
	_, err := ParseManifest([]byte("strict: true\nsys: [hostname, nope]\n"), FormatYAML)
	assert.Error(t, err)

	m, err := ParseManifest([]byte("sys: [hostname, nope]\n"), FormatYAML)
	require.NoError(t, err)
	assert.NoError(t, m.Allowlist().CheckSys(OtherSystemKind("nope"), "custom"))

	_, err = ParseManifest([]byte("read: ['']\n"), FormatYAML)
	assert.Error(t, err)
}

func TestManifestNormalizesEntries(t *testing.T) {
	chdir(t, t.TempDir())
	abs, err := filepath.Abs("x.txt")
	require.NoError(t, err)

	m, err := ParseManifest([]byte(`
read_all: true
read: [x.txt]
open:
  read: [./sub/../x.txt]
hosts: [API.Example.com, "Localhost:8080"]
urls: ["https://Example.com"]
`), FormatYAML)
	require.NoError(t, err)
	a := m.Allowlist()

	_, err = a.CheckRead(abs, "fs.read")
	assert.NoError(t, err)
	_, err = a.CheckOpen(abs, Read, "fs.open")
	assert.NoError(t, err)
	assert.NoError(t, a.CheckHost("api.example.com", 0, "net"))
	assert.NoError(t, a.CheckHost("localhost", 8080, "net"))

	for _, raw := range []string{"https://example.com", "https://example.com/"} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.NoError(t, a.CheckURL(u, "fetch"), raw)
	}
}

func TestManifestRejectsUnusableEntries(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad host", "hosts: ['exa mple.com']\n"},
		{"url without host", "urls: ['not a url']\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.doc), FormatYAML)
			assert.Error(t, err)
		})
	}
}

func TestManifestSchemaRejectsUnknownKeys(t *testing.T) {
	_, err := ParseManifest([]byte("read_al: true\n"), FormatYAML)
	assert.ErrorContains(t, err, "invalid manifest")

	_, err = ParseManifest([]byte("hrtime = \"yes\"\n"), FormatTOML)
	assert.ErrorContains(t, err, "invalid manifest")

	_, err = ParseManifest([]byte("open:\n  append: [/tmp]\n"), FormatYAML)
	assert.Error(t, err)

	m, err := ParseManifest([]byte(""), FormatYAML)
	require.NoError(t, err)
	assert.False(t, m.ReadAll)

	schema, err := ManifestSchema()
	require.NoError(t, err)
	assert.Contains(t, string(schema), `"read_all"`)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "perms.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlManifest), 0o600))
	m, err := LoadManifest(yamlPath)
	require.NoError(t, err)
	assert.True(t, m.HRTime)

	tomlPath := filepath.Join(dir, "perms.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlManifest), 0o600))
	m, err = LoadManifest(tomlPath)
	require.NoError(t, err)
	assert.True(t, m.Exec)

	_, err = LoadManifest(filepath.Join(dir, "perms.json"))
	assert.Error(t, err)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
