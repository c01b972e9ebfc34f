package hostapi

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/guesthost/internal/permissions"
)

// FsPermissions is what the filesystem extension needs
type FsPermissions interface {
	CheckOpen(path string, read, write, noFollow bool, api string) (permissions.CheckedPath, error)
	CheckOpenBlind(path string, read, write, noFollow bool, display, api string) (permissions.CheckedPath, error)
	CheckRead(path, api string) (string, error)
	CheckReadBlind(path, display, api string) error
	CheckWrite(path, api string) (string, error)
	CheckReadAll(api string) error
	CheckWriteAll(api string) error
	CheckWritePartial(path, api string) (permissions.CheckedPath, error)
}

// NetPermissions is what raw socket APIs need
type NetPermissions interface {
	CheckNet(host string, port int, api string) error
	CheckOpen(path string, read, write, noFollow bool, api string) (permissions.CheckedPath, error)
	CheckVsock(cid, port uint32, api string) error
}

// FetchPermissions is what fetch needs
type FetchPermissions interface {
	CheckNetURL(u *url.URL, api string) error
	CheckOpen(path string, read, write, noFollow bool, api string) (permissions.CheckedPath, error)
	CheckNetVsock(cid, port uint32, api string) error
}

// TimersPermission is what timers and performance.now need
type TimersPermission interface {
	AllowHRTime() bool
}

// Container is the per-runtime handle every extension checks against.
// It holds the backend by value; for an Allowlist that value is a shared
// pointer, so administrative changes are visible to running guests.
type Container struct {
	perms    permissions.WebPermissions
	resolver Resolver
	logger   *zap.Logger
}

var (
	_ FsPermissions    = (*Container)(nil)
	_ NetPermissions   = (*Container)(nil)
	_ FetchPermissions = (*Container)(nil)
	_ TimersPermission = (*Container)(nil)
)

// Option configures a Container
type Option func(*Container)

// WithResolver sets the path resolver; CleanResolver is the default
func WithResolver(r Resolver) Option {
	return func(c *Container) { c.resolver = r }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) { c.logger = l }
}

// New creates a container around perms
func New(perms permissions.WebPermissions, opts ...Option) *Container {
	c := &Container{
		perms:    perms,
		resolver: CleanResolver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Permissions returns the wrapped backend
func (c *Container) Permissions() permissions.WebPermissions {
	return c.perms
}

func pathError(api, path string, err error) error {
	return &fs.PathError{Op: api, Path: path, Err: err}
}

// asRequested rewrites a denial of the normalized or resolved path to name
// the path the guest passed in. Resolution turns relative paths into
// absolute ones, and the working directory must not reach the guest.
func asRequested(err error, path string) error {
	var denied *permissions.PermissionDeniedError
	if err == nil || !errors.As(err, &denied) {
		return err
	}
	shown := *denied
	shown.Access = path
	return &shown
}

// resolve normalizes path lexically and then through the resolver.
// Resolution failures are reported as open denials.
func (c *Container) resolve(path string, noFollow bool, display, api string) (normalized, resolved string, err error) {
	normalized, err = CleanResolver{}.Resolve(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", permissions.Deny(permissions.CategoryOpen, display, api), err)
	}
	if noFollow {
		resolved, err = resolveNoFollow(c.resolver, normalized)
	} else {
		resolved, err = c.resolver.Resolve(normalized)
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", permissions.Deny(permissions.CategoryOpen, display, api), err)
	}
	return normalized, resolved, nil
}

func (c *Container) checkOpen(path string, read, write, noFollow bool, display string, blind bool, api string) (permissions.CheckedPath, error) {
	kind, err := permissions.AccessKindFor(read, write, noFollow)
	if err != nil {
		denied := permissions.Deny(permissions.CategoryOpen, display, api)
		return permissions.CheckedPath{}, pathError(api, display, fmt.Errorf("%w: %v", denied, err))
	}
	if path == "" {
		_, err := c.perms.CheckOpen("", kind, api)
		if err == nil {
			err = permissions.Deny(permissions.CategoryOpen, "invalid filename", api)
		}
		return permissions.CheckedPath{}, pathError(api, display, err)
	}

	normalized, resolved, err := c.resolve(path, noFollow, display, api)
	if err != nil {
		return permissions.CheckedPath{}, pathError(api, display, err)
	}

	check := func(p string) (permissions.CheckedPath, error) {
		if blind {
			return c.perms.CheckOpenBlind(p, kind, display, api)
		}
		checked, err := c.perms.CheckOpen(p, kind, api)
		return checked, asRequested(err, display)
	}

	checked, err := check(normalized)
	if err != nil {
		return permissions.CheckedPath{}, pathError(api, display, err)
	}
	if resolved != normalized {
		c.logger.Debug("Re-checking resolved path",
			zap.String("api", api),
			zap.Bool("blind", blind),
		)
		checked, err = check(resolved)
		if err != nil {
			return permissions.CheckedPath{}, pathError(api, display, err)
		}
	}
	return checked, nil
}

// CheckOpen checks opening path with the access described by the flags.
// The returned path is normalized and resolved.
func (c *Container) CheckOpen(path string, read, write, noFollow bool, api string) (permissions.CheckedPath, error) {
	return c.checkOpen(path, read, write, noFollow, path, false, api)
}

// CheckOpenBlind is CheckOpen for paths that must not appear in errors
func (c *Container) CheckOpenBlind(path string, read, write, noFollow bool, display, api string) (permissions.CheckedPath, error) {
	return c.checkOpen(path, read, write, noFollow, display, true, api)
}

// CheckRead checks reading a whole path, following symlinks
func (c *Container) CheckRead(path, api string) (string, error) {
	normalized, resolved, err := c.resolve(path, false, path, api)
	if err != nil {
		return "", pathError(api, path, err)
	}
	if _, err := c.perms.CheckRead(normalized, api); err != nil {
		return "", pathError(api, path, asRequested(err, path))
	}
	if resolved != normalized {
		if _, err := c.perms.CheckRead(resolved, api); err != nil {
			return "", pathError(api, path, asRequested(err, path))
		}
	}
	return resolved, nil
}

// CheckReadBlind is CheckRead for paths the guest must not learn, such as
// the working directory. Only display appears in errors.
func (c *Container) CheckReadBlind(path, display, api string) error {
	normalized, resolved, err := c.resolve(path, false, display, api)
	if err != nil {
		return pathError(api, display, err)
	}
	if err := c.perms.CheckReadBlind(normalized, display, api); err != nil {
		return pathError(api, display, err)
	}
	if resolved != normalized {
		if err := c.perms.CheckReadBlind(resolved, display, api); err != nil {
			return pathError(api, display, err)
		}
	}
	return nil
}

// CheckWrite checks writing a whole path, following symlinks
func (c *Container) CheckWrite(path, api string) (string, error) {
	normalized, resolved, err := c.resolve(path, false, path, api)
	if err != nil {
		return "", pathError(api, path, err)
	}
	if _, err := c.perms.CheckWrite(normalized, api); err != nil {
		return "", pathError(api, path, asRequested(err, path))
	}
	if resolved != normalized {
		if _, err := c.perms.CheckWrite(resolved, api); err != nil {
			return "", pathError(api, path, asRequested(err, path))
		}
	}
	return resolved, nil
}

func (c *Container) CheckReadAll(api string) error {
	if err := c.perms.CheckReadAll(api); err != nil {
		return pathError(api, "<all>", err)
	}
	return nil
}

func (c *Container) CheckWriteAll(api string) error {
	if err := c.perms.CheckWriteAll(api); err != nil {
		return pathError(api, "<all>", err)
	}
	return nil
}

// CheckWritePartial checks writes that touch the link itself, so the final
// component is never followed
func (c *Container) CheckWritePartial(path, api string) (permissions.CheckedPath, error) {
	normalized, resolved, err := c.resolve(path, true, path, api)
	if err != nil {
		return permissions.CheckedPath{}, pathError(api, path, err)
	}
	checked, err := c.perms.CheckWritePartial(normalized, api)
	if err != nil {
		return permissions.CheckedPath{}, pathError(api, path, asRequested(err, path))
	}
	if resolved != normalized {
		checked, err = c.perms.CheckWritePartial(resolved, api)
		if err != nil {
			return permissions.CheckedPath{}, pathError(api, path, asRequested(err, path))
		}
	}
	return checked, nil
}

// CheckNet checks a raw connection to host:port; port 0 means unspecified
func (c *Container) CheckNet(host string, port int, api string) error {
	normalized, err := permissions.NormalizeHost(host)
	if err != nil {
		return permissions.Deny(permissions.CategoryHost, host, api)
	}
	return c.perms.CheckHost(normalized, port, api)
}

// CheckNetURL checks a fetch target. The host is normalized and an empty
// path becomes "/" before the URL is matched; u itself is left alone.
func (c *Container) CheckNetURL(u *url.URL, api string) error {
	if u == nil {
		return permissions.Deny(permissions.CategoryURL, "", api)
	}
	target, err := permissions.NormalizeURL(u)
	if err != nil {
		return permissions.Deny(permissions.CategoryURL, u.String(), api)
	}
	return c.perms.CheckURL(target, api)
}

// CheckVsock always denies; vsock is not part of the permission model
func (c *Container) CheckVsock(cid, port uint32, api string) error {
	return permissions.Unsupported(permissions.CategoryNet, "vsock", api)
}

// CheckNetVsock always denies; vsock is not part of the permission model
func (c *Container) CheckNetVsock(cid, port uint32, api string) error {
	return permissions.Unsupported(permissions.CategoryURL, "vsock", api)
}

func (c *Container) AllowHRTime() bool {
	return c.perms.AllowHRTime()
}

func (c *Container) CheckEnv(name string) error {
	return c.perms.CheckEnv(name)
}

func (c *Container) CheckSys(kind permissions.SystemKind, api string) error {
	return c.perms.CheckSys(kind, api)
}

func (c *Container) CheckExec() error {
	return c.perms.CheckExec()
}
