// Package hostapi adapts a permissions.WebPermissions backend to the narrow
// contracts the host subsystems expect.
//
// The filesystem, network and fetch extensions never talk to a permission
// backend directly. They hold a *Container, which translates their parameter
// shapes into access kinds, normalizes and resolves paths and host names, and
// maps denials into the error shape each subsystem returns to the guest.
//
// Path resolution is supplied by the caller through a Resolver. When the
// resolved path differs from the requested one both are checked, so a
// symlink cannot widen the scope of a grant.
//
// Capability classes the permission model does not describe (vsock) are
// always denied.
package hostapi
