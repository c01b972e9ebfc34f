package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/guesthost/internal/infrastructure/config"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func results(t *testing.T, out string) []Result {
	t.Helper()
	var res []Result
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var r Result
		require.NoError(t, json.Unmarshal([]byte(line), &r), line)
		res = append(res, r)
	}
	return res
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	return cfg
}

func TestRunScripts(t *testing.T) {
	dir := t.TempDir()
	sync := writeScript(t, dir, "sync.js", `({answer: 6 * 7})`)
	async := writeScript(t, dir, "async.js", `Promise.resolve("later")`)

	var out bytes.Buffer
	err := run(context.Background(), testConfig(), Options{Scripts: []string{sync, async}, AllowAll: true}, &out)
	require.NoError(t, err)

	res := results(t, out.String())
	require.Len(t, res, 2)
	assert.Equal(t, sync, res[0].Script)
	assert.Equal(t, map[string]interface{}{"answer": 42.0}, res[0].Value)
	assert.Equal(t, "later", res[1].Value)
}

func TestRunReportsDenials(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "env.js", `host.env.get("HOME")`)

	var out bytes.Buffer
	err := run(context.Background(), testConfig(), Options{Scripts: []string{script}}, &out)
	assert.Error(t, err)

	res := results(t, out.String())
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Error, "PermissionDenied")
}

func TestRunWithManifest(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GUESTHOST_GREETING", "hello")
	manifest := writeScript(t, dir, "perms.yaml", "env:\n  - GUESTHOST_GREETING\n")
	script := writeScript(t, dir, "env.js", `host.env.get("GUESTHOST_GREETING")`)

	var out bytes.Buffer
	err := run(context.Background(), testConfig(), Options{Scripts: []string{script}, Manifest: manifest}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", results(t, out.String())[0].Value)
}

func TestRunSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), testConfig(), Options{Schema: true}, &out))
	assert.True(t, json.Valid(bytes.TrimSpace(out.Bytes())))
}
