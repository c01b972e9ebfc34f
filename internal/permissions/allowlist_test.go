package permissions

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlistDeniesByDefault(t *testing.T) {
	a := NewAllowlist()
	u, _ := url.Parse("https://example.com/")

	assert.False(t, a.AllowHRTime())
	assert.ErrorIs(t, a.CheckURL(u, "fetch"), ErrPermissionDenied)
	assert.ErrorIs(t, a.CheckHost("example.com", 443, "net"), ErrPermissionDenied)
	assert.ErrorIs(t, a.CheckEnv("HOME"), ErrPermissionDenied)
	assert.ErrorIs(t, a.CheckSys(SysHostname, "os"), ErrPermissionDenied)
	assert.ErrorIs(t, a.CheckExec(), ErrPermissionDenied)
	assert.ErrorIs(t, a.CheckReadAll("fs"), ErrPermissionDenied)
	assert.ErrorIs(t, a.CheckWriteAll("fs"), ErrPermissionDenied)

	_, err := a.CheckOpen("/tmp/x", Read, "fs.open")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAllowlistReadRoundTrip(t *testing.T) {
	paths := []string{"/tmp/a.txt", "relative/b", "a/../b", "C:\\windows\\c", "", "with space"}
	for _, p := range paths {
		t.Run(fmt.Sprintf("%q", p), func(t *testing.T) {
			a := NewAllowlist()
			a.SetReadAll(true)

			a.AllowRead(p)
			got, err := a.CheckRead(p, "fs.read")
			require.NoError(t, err)
			assert.Equal(t, p, got)

			a.DenyRead(p)
			_, err = a.CheckRead(p, "fs.read")
			assert.ErrorIs(t, err, ErrPermissionDenied)
		})
	}
}

func TestAllowlistReadAllIsMasterSwitch(t *testing.T) {
	a := NewAllowlist()
	a.AllowRead("/tmp/a")
	a.AllowWrite("/tmp/a")

	_, err := a.CheckRead("/tmp/a", "fs.read")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = a.CheckReadPath("/tmp/a", "fs.read")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, a.CheckReadBlind("/tmp/a", "<file>", "fs.read"), ErrPermissionDenied)

	_, err = a.CheckWrite("/tmp/a", "fs.write")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = a.CheckWritePartial("/tmp/a", "fs.symlink")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	a.SetReadAll(true)
	_, err = a.CheckRead("/tmp/a", "fs.read")
	assert.NoError(t, err)
	_, err = a.CheckRead("/tmp/b", "fs.read")
	assert.ErrorIs(t, err, ErrPermissionDenied, "master switch alone is not enough")

	a.SetWriteAll(true)
	_, err = a.CheckWritePartial("/tmp/a", "fs.symlink")
	assert.NoError(t, err)
}

func TestAllowlistWildcard(t *testing.T) {
	a := NewAllowlist()
	a.SetReadAll(true)
	a.AllowRead(Wildcard)

	_, err := a.CheckRead("/anything/at/all", "fs.read")
	assert.NoError(t, err)

	a.AllowEnv(Wildcard)
	assert.NoError(t, a.CheckEnv("PATH"))
}

func TestAllowlistOpenAccessKinds(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(a *Allowlist)
		kind    AccessKind
		allowed bool
	}{
		{"read with read set", func(a *Allowlist) { a.AllowOpen("/f", true, false) }, Read, true},
		{"read nofollow with read set", func(a *Allowlist) { a.AllowOpen("/f", true, false) }, ReadNoFollow, true},
		{"write with read set", func(a *Allowlist) { a.AllowOpen("/f", true, false) }, Write, false},
		{"write with write set", func(a *Allowlist) { a.AllowOpen("/f", false, true) }, WriteNoFollow, true},
		{"read-write with read only", func(a *Allowlist) { a.AllowOpen("/f", true, false) }, ReadWrite, false},
		{"read-write with write only", func(a *Allowlist) { a.AllowOpen("/f", false, true) }, ReadWrite, false},
		{"read-write with both", func(a *Allowlist) { a.AllowOpen("/f", true, true) }, ReadWriteNoFollow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAllowlist()
			tt.setup(a)

			cp, err := a.CheckOpen("/f", tt.kind, "fs.open")
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, "/f", cp.Path)
				assert.Equal(t, tt.kind, cp.Kind)
			} else {
				assert.ErrorIs(t, err, ErrPermissionDenied)
				cat, ok := CategoryOf(err)
				assert.True(t, ok)
				assert.Equal(t, CategoryOpen, cat)
			}
		})
	}
}

func TestAllowlistDenyOpen(t *testing.T) {
	a := NewAllowlist()
	a.AllowOpen("/f", true, true)
	a.DenyOpen("/f", false, true)

	_, err := a.CheckOpen("/f", Read, "fs.open")
	assert.NoError(t, err)
	_, err = a.CheckOpen("/f", Write, "fs.open")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAllowlistBlindChecksHidePath(t *testing.T) {
	a := NewAllowlist()

	_, err := a.CheckOpenBlind("/secret/file", Read, "<redacted>", "fs.stat")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "/secret/file")
	assert.Contains(t, err.Error(), "<redacted>")

	err = a.CheckReadBlind("/secret/file", "<redacted>", "fs.stat")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "/secret/file")

	err = a.CheckWriteBlind("/secret/file", "<redacted>", "fs.stat")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "/secret/file")
}

func TestAllowlistScalarChecks(t *testing.T) {
	a := NewAllowlist()
	u, _ := url.Parse("https://api.example.com/v1")

	a.AllowURL(u.String())
	assert.NoError(t, a.CheckURL(u, "fetch"))
	a.DenyURL(u.String())
	assert.Error(t, a.CheckURL(u, "fetch"))

	a.AllowHost("example.com")
	assert.NoError(t, a.CheckHost("example.com", 0, "net"))
	assert.NoError(t, a.CheckHost("example.com", 8080, "net"))
	a.DenyHost("example.com")
	a.AllowHost("example.com:443")
	assert.NoError(t, a.CheckHost("example.com", 443, "net"))
	assert.Error(t, a.CheckHost("example.com", 80, "net"))

	a.AllowEnv("HOME")
	assert.NoError(t, a.CheckEnv("HOME"))
	a.DenyEnv("HOME")
	assert.Error(t, a.CheckEnv("HOME"))

	a.AllowSys(SysCpus)
	assert.NoError(t, a.CheckSys(SysCpus, "os.cpus"))
	assert.Error(t, a.CheckSys(SysHostname, "os.hostname"))
	a.DenySys(SysCpus)
	assert.Error(t, a.CheckSys(SysCpus, "os.cpus"))

	a.SetExec(true)
	assert.NoError(t, a.CheckExec())
	a.SetHRTime(true)
	assert.True(t, a.AllowHRTime())
}

func TestAllowlistDenialShape(t *testing.T) {
	a := NewAllowlist()
	err := a.CheckSys(SysUid, "os.uid")

	var denied *PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, CategorySys, denied.Category)
	assert.Equal(t, "uid", denied.Access)
	assert.Equal(t, "os.uid", denied.API)
}

func TestAllowlistConcurrentAccess(t *testing.T) {
	a := NewAllowlist()
	a.SetReadAll(true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p := fmt.Sprintf("/tmp/%d/%d", i, j)
				a.AllowRead(p)
				a.DenyRead(p)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = a.CheckRead("/tmp/x", "fs.read")
				_ = a.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, a.Snapshot().ReadPaths)
}

func TestAllowlistSnapshot(t *testing.T) {
	a := NewAllowlist()
	a.SetHRTime(true)
	a.AllowRead("/b")
	a.AllowRead("/a")
	a.AllowSys(SysHostname)

	snap := a.Snapshot()
	assert.True(t, snap.HRTime)
	assert.Equal(t, []string{"/a", "/b"}, snap.ReadPaths)
	assert.Equal(t, []string{"hostname"}, snap.Sys)
}
