package permissions

import "fmt"

// AccessKind describes how a path is being opened
type AccessKind int

const (
	Read AccessKind = iota
	ReadNoFollow
	Write
	WriteNoFollow
	ReadWrite
	ReadWriteNoFollow
)

// AccessKindFor translates separate read/write flags into an AccessKind.
// Requesting neither read nor write is an error.
func AccessKindFor(read, write, noFollow bool) (AccessKind, error) {
	var kind AccessKind
	switch {
	case read && write:
		kind = ReadWrite
	case read:
		kind = Read
	case write:
		kind = Write
	default:
		return 0, fmt.Errorf("open requires read or write access")
	}
	if noFollow {
		kind++
	}
	return kind, nil
}

// Reads reports whether the access needs read capability
func (k AccessKind) Reads() bool {
	switch k {
	case Read, ReadNoFollow, ReadWrite, ReadWriteNoFollow:
		return true
	}
	return false
}

// Writes reports whether the access needs write capability
func (k AccessKind) Writes() bool {
	switch k {
	case Write, WriteNoFollow, ReadWrite, ReadWriteNoFollow:
		return true
	}
	return false
}

// NoFollow reports whether symlinks must not be followed
func (k AccessKind) NoFollow() bool {
	switch k {
	case ReadNoFollow, WriteNoFollow, ReadWriteNoFollow:
		return true
	}
	return false
}

// String returns the string representation of the access kind
func (k AccessKind) String() string {
	switch k {
	case Read:
		return "read"
	case ReadNoFollow:
		return "read-nofollow"
	case Write:
		return "write"
	case WriteNoFollow:
		return "write-nofollow"
	case ReadWrite:
		return "read-write"
	case ReadWriteNoFollow:
		return "read-write-nofollow"
	default:
		return "unknown"
	}
}

// CheckedPath is a path that passed an open-family check.
// Path is what the caller should operate on; it may differ from the
// requested path when a resolver canonicalized it.
type CheckedPath struct {
	Path string
	Kind AccessKind
}
