package permissions

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnsupported      = errors.New("unsupported capability")
)

// Category identifies the capability class a denial belongs to
type Category string

const (
	CategoryURL   Category = "url"
	CategoryHost  Category = "host"
	CategoryNet   Category = "net"
	CategoryRead  Category = "read"
	CategoryWrite Category = "write"
	CategoryOpen  Category = "open"
	CategoryEnv   Category = "env"
	CategorySys   Category = "sys"
	CategoryExec  Category = "exec"
	CategoryFatal Category = "fatal"
)

// PermissionDeniedError is returned by every refused check.
// Category is machine-stable; Access names what was refused and is safe to
// show to the guest (blind checks put a display string here, never the path).
type PermissionDeniedError struct {
	Category Category
	Access   string
	API      string
}

func (e *PermissionDeniedError) Error() string {
	if e.API != "" {
		return fmt.Sprintf("requires %s access to %q (%s)", e.Category, e.Access, e.API)
	}
	return fmt.Sprintf("requires %s access to %q", e.Category, e.Access)
}

func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// UnsupportedError denies a capability class the permission model does not
// describe. It always counts as a permission denial.
type UnsupportedError struct {
	Category   Category
	Capability string
	API        string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s access is not supported", e.Capability)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported || target == ErrPermissionDenied
}

// Unsupported builds a fail-closed denial for an unmodeled capability.
func Unsupported(category Category, capability, api string) error {
	return &UnsupportedError{Category: category, Capability: capability, API: api}
}

func deny(category Category, access, api string) error {
	return &PermissionDeniedError{Category: category, Access: access, API: api}
}

// Deny builds a denial for custom WebPermissions implementations.
func Deny(category Category, access, api string) error {
	return deny(category, access, api)
}

// CategoryOf extracts the denial category from err, if any.
func CategoryOf(err error) (Category, bool) {
	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		return denied.Category, true
	}
	var unsupported *UnsupportedError
	if errors.As(err, &unsupported) {
		return unsupported.Category, true
	}
	return "", false
}
