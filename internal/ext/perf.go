package ext

import (
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/hostapi"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// Perf exposes performance.now and performance.timeOrigin. Without the
// hrtime grant readings are truncated to whole milliseconds.
type Perf struct {
	perms hostapi.TimersPermission
	now   func() time.Time
}

func NewPerf(perms hostapi.TimersPermission) *Perf {
	return &Perf{perms: perms, now: time.Now}
}

func (p *Perf) Name() string { return "perf" }

func (p *Perf) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	origin := p.now()
	perf := vm.NewObject()
	if err := perf.Set("timeOrigin", float64(origin.UnixNano())/1e6); err != nil {
		return err
	}
	if err := perf.Set("now", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(Elapsed(p.now().Sub(origin), p.perms.AllowHRTime()))
	}); err != nil {
		return err
	}
	return vm.Set("performance", perf)
}

// Elapsed converts d to fractional milliseconds, truncated to whole
// milliseconds unless hrtime is allowed
func Elapsed(d time.Duration, hrtime bool) float64 {
	if !hrtime {
		d = d.Truncate(time.Millisecond)
	}
	return float64(d) / float64(time.Millisecond)
}
