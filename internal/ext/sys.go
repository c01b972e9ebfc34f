package ext

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dop251/goja"
	"github.com/prometheus/procfs"

	"github.com/GriffinCanCode/guesthost/internal/permissions"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// SysPermissions is what the system information extension needs
type SysPermissions interface {
	CheckSys(kind permissions.SystemKind, api string) error
}

// MemoryInfo is the result of host.sys.systemMemoryInfo, in bytes
type MemoryInfo struct {
	Total     uint64 `json:"total"`
	Free      uint64 `json:"free"`
	Available uint64 `json:"available"`
	Buffers   uint64 `json:"buffers"`
	Cached    uint64 `json:"cached"`
	SwapTotal uint64 `json:"swapTotal"`
	SwapFree  uint64 `json:"swapFree"`
}

// Sys exposes host.sys. Each query is gated by its own system kind.
type Sys struct {
	perms SysPermissions
	proc  func() (procfs.FS, error)
}

func NewSys(perms SysPermissions) *Sys {
	return &Sys{perms: perms, proc: procfs.NewDefaultFS}
}

func (s *Sys) Name() string { return "sys" }

type sysQuery struct {
	name  string
	kind  permissions.SystemKind
	query func() (interface{}, error)
}

func (s *Sys) queries() []sysQuery {
	return []sysQuery{
		{"hostname", permissions.SysHostname, func() (interface{}, error) { return os.Hostname() }},
		{"loadavg", permissions.SysLoadAvg, s.loadavg},
		{"osUptime", permissions.SysOsUptime, s.uptime},
		{"systemMemoryInfo", permissions.SysSystemMemoryInfo, s.memory},
		{"cpus", permissions.SysCpus, func() (interface{}, error) { return runtime.NumCPU(), nil }},
		{"uid", permissions.SysUid, func() (interface{}, error) { return os.Getuid(), nil }},
		{"gid", permissions.SysGid, func() (interface{}, error) { return os.Getgid(), nil }},
		{"getegid", permissions.SysGetEGid, func() (interface{}, error) { return os.Getegid(), nil }},
		{"homeDir", permissions.SysHomeDir, func() (interface{}, error) { return os.UserHomeDir() }},
	}
}

func (s *Sys) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	ns, err := namespace(vm, "sys")
	if err != nil {
		return err
	}
	for _, q := range s.queries() {
		q := q
		api := "host.sys." + q.name
		err := ns.Set(q.name, func(goja.FunctionCall) goja.Value {
			record(rt, vm, api, s.perms.CheckSys(q.kind, api))
			v, err := q.query()
			record(rt, vm, api, err)
			if info, ok := v.(MemoryInfo); ok {
				return toObject(vm, info)
			}
			return vm.ToValue(v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// loadavg reports 1, 5 and 15 minute averages; zeros where procfs is absent
func (s *Sys) loadavg() (interface{}, error) {
	fs, err := s.proc()
	if err != nil {
		return []float64{0, 0, 0}, nil
	}
	avg, err := fs.LoadAvg()
	if err != nil {
		return []float64{0, 0, 0}, nil
	}
	return []float64{avg.Load1, avg.Load5, avg.Load15}, nil
}

// uptime is seconds since boot
func (s *Sys) uptime() (interface{}, error) {
	fs, err := s.proc()
	if err != nil {
		return nil, fmt.Errorf("uptime unavailable: %w", err)
	}
	stat, err := fs.Stat()
	if err != nil {
		return nil, fmt.Errorf("uptime unavailable: %w", err)
	}
	boot := time.Unix(int64(stat.BootTime), 0)
	return int64(time.Since(boot).Seconds()), nil
}

func (s *Sys) memory() (interface{}, error) {
	fs, err := s.proc()
	if err != nil {
		return nil, fmt.Errorf("memory info unavailable: %w", err)
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return nil, fmt.Errorf("memory info unavailable: %w", err)
	}
	kb := func(v *uint64) uint64 {
		if v == nil {
			return 0
		}
		return *v * 1024
	}
	return MemoryInfo{
		Total:     kb(mi.MemTotal),
		Free:      kb(mi.MemFree),
		Available: kb(mi.MemAvailable),
		Buffers:   kb(mi.Buffers),
		Cached:    kb(mi.Cached),
		SwapTotal: kb(mi.SwapTotal),
		SwapFree:  kb(mi.SwapFree),
	}, nil
}
