package permissions

import "net/url"

// Wildcard in any allowlist set matches every key of that set
const Wildcard = "*"

// WebPermissions decides whether guest code may touch a host capability.
//
// Each method takes the minimal identifying data for its capability class plus
// the name of the originating API, which is only used in diagnostics. A nil
// error (or a CheckedPath) means allowed; refusals are *PermissionDeniedError.
// Implementations must be safe for concurrent use and must not block.
type WebPermissions interface {
	// AllowHRTime reports whether timers may expose high resolution time.
	AllowHRTime() bool

	// CheckURL gates fetch and websocket targets.
	CheckURL(u *url.URL, api string) error

	// CheckHost gates raw network connections. A port of 0 means unspecified.
	CheckHost(host string, port int, api string) error

	// CheckOpen gates opening a file handle with the given access kind.
	CheckOpen(path string, kind AccessKind, api string) (CheckedPath, error)

	// CheckOpenBlind is CheckOpen for paths that must not leak into errors;
	// display is reported instead.
	CheckOpenBlind(path string, kind AccessKind, display, api string) (CheckedPath, error)

	// CheckRead gates reading a single path.
	CheckRead(path, api string) (string, error)

	// CheckReadPath gates reading a path that was already resolved by the caller.
	CheckReadPath(path, api string) (CheckedPath, error)

	// CheckReadAll reports whether reading anything at all is allowed.
	CheckReadAll(api string) error

	// CheckReadBlind gates a read without revealing the path.
	CheckReadBlind(path, display, api string) error

	// CheckWrite gates writing a single path.
	CheckWrite(path, api string) (string, error)

	// CheckWriteAll reports whether writing anything at all is allowed.
	CheckWriteAll(api string) error

	// CheckWritePartial gates writes that only touch part of a path (e.g. symlink creation).
	CheckWritePartial(path, api string) (CheckedPath, error)

	// CheckWriteBlind gates a write without revealing the path.
	CheckWriteBlind(path, display, api string) error

	// CheckEnv gates reading an environment variable.
	CheckEnv(name string) error

	// CheckSys gates a system information query.
	CheckSys(kind SystemKind, api string) error

	// CheckExec gates spawning processes and native code execution.
	CheckExec() error
}

// URLKey is the form under which URLs are stored and matched. A URL with a
// host and no path is keyed with the root path, so "https://example.com"
// and "https://example.com/" share one key.
func URLKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.Opaque == "" && u.Path == "" && u.Host != "" {
		rooted := *u
		rooted.Path = "/"
		rooted.RawPath = ""
		return rooted.String()
	}
	return u.String()
}
