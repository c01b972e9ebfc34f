package permissions

// SystemKind names a system information query a guest may perform.
// The known kinds mirror the checks performed by the host system extension;
// anything else is carried as an Other kind holding the raw key.
type SystemKind struct {
	key   string
	other bool
}

// Known system kinds
var (
	SysLoadAvg           = SystemKind{key: "loadavg"}
	SysHostname          = SystemKind{key: "hostname"}
	SysOsRelease         = SystemKind{key: "osRelease"}
	SysNetworkInterfaces = SystemKind{key: "networkInterfaces"}
	SysStatFs            = SystemKind{key: "statfs"}
	SysGetPriority       = SystemKind{key: "getPriority"}
	SysSystemMemoryInfo  = SystemKind{key: "systemMemoryInfo"}
	SysGid               = SystemKind{key: "gid"}
	SysUid               = SystemKind{key: "uid"}
	SysOsUptime          = SystemKind{key: "osUptime"}
	SysSetPriority       = SystemKind{key: "setPriority"}
	SysUserInfo          = SystemKind{key: "userInfo"}
	SysGetEGid           = SystemKind{key: "getegid"}
	SysCpus              = SystemKind{key: "cpus"}
	SysHomeDir           = SystemKind{key: "homeDir"}
	SysInspector         = SystemKind{key: "inspector"}
)

var knownSystemKinds = []SystemKind{
	SysLoadAvg,
	SysHostname,
	SysOsRelease,
	SysNetworkInterfaces,
	SysStatFs,
	SysGetPriority,
	SysSystemMemoryInfo,
	SysGid,
	SysUid,
	SysOsUptime,
	SysSetPriority,
	SysUserInfo,
	SysGetEGid,
	SysCpus,
	SysHomeDir,
	SysInspector,
}

var systemKindsByKey = func() map[string]SystemKind {
	m := make(map[string]SystemKind, len(knownSystemKinds))
	for _, k := range knownSystemKinds {
		m[k.key] = k
	}
	return m
}()

// NewSystemKind returns the known kind whose key matches s exactly,
// or an Other kind carrying s.
func NewSystemKind(s string) SystemKind {
	if k, ok := systemKindsByKey[s]; ok {
		return k
	}
	return SystemKind{key: s, other: true}
}

// OtherSystemKind builds a custom kind without consulting the known set.
func OtherSystemKind(s string) SystemKind {
	return SystemKind{key: s, other: true}
}

// String returns the canonical key
func (k SystemKind) String() string {
	return k.key
}

// IsOther reports whether k is outside the known set
func (k SystemKind) IsOther() bool {
	return k.other
}

// KnownSystemKinds returns the closed set of kinds in declaration order.
func KnownSystemKinds() []SystemKind {
	return append([]SystemKind(nil), knownSystemKinds...)
}
