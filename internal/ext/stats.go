package ext

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dop251/goja"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

var errNoSamples = errors.New("at least one finite number is required")

// Summary describes a sample
type Summary struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"stddev"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Stats exposes host.stats, numeric helpers that need no permission
type Stats struct{}

func NewStats() *Stats { return &Stats{} }

func (s *Stats) Name() string { return "stats" }

func (s *Stats) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	ns, err := namespace(vm, "stats")
	if err != nil {
		return err
	}
	numbers := func(call goja.FunctionCall, i int, name string) []float64 {
		var xs []float64
		v := call.Argument(i)
		if goja.IsUndefined(v) || goja.IsNull(v) || vm.ExportTo(v, &xs) != nil {
			panic(vm.NewTypeError("%s must be an array of numbers", name))
		}
		return xs
	}
	fail := func(err error) {
		if err != nil {
			panic(vm.NewTypeError("%v", err))
		}
	}

	fns := map[string]func(goja.FunctionCall) goja.Value{
		"summary": func(call goja.FunctionCall) goja.Value {
			sum, err := Summarize(numbers(call, 0, "values"))
			fail(err)
			return toObject(vm, sum)
		},
		"quantile": func(call goja.FunctionCall) goja.Value {
			q, err := Quantile(numbers(call, 0, "values"), call.Argument(1).ToFloat())
			fail(err)
			return vm.ToValue(q)
		},
		"correlation": func(call goja.FunctionCall) goja.Value {
			c, err := Correlation(numbers(call, 0, "x"), numbers(call, 1, "y"))
			fail(err)
			return vm.ToValue(c)
		},
	}
	for name, fn := range fns {
		if err := ns.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func finite(xs []float64) error {
	if len(xs) == 0 {
		return errNoSamples
	}
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("value %d is not finite", i)
		}
	}
	return nil
}

func sorted(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Summarize computes descriptive statistics. StdDev and Variance are the
// sample (n-1) estimates and are zero for a single value.
func Summarize(xs []float64) (Summary, error) {
	if err := finite(xs); err != nil {
		return Summary{}, err
	}
	s := Summary{
		Count:  len(xs),
		Mean:   stat.Mean(xs, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted(xs), nil),
		Min:    floats.Min(xs),
		Max:    floats.Max(xs),
	}
	if len(xs) > 1 {
		s.Variance = stat.Variance(xs, nil)
		s.StdDev = math.Sqrt(s.Variance)
	}
	return s, nil
}

// Quantile returns the empirical p-quantile, p in [0, 1]
func Quantile(xs []float64, p float64) (float64, error) {
	if err := finite(xs); err != nil {
		return 0, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("quantile %v is outside [0, 1]", p)
	}
	return stat.Quantile(p, stat.Empirical, sorted(xs), nil), nil
}

// Correlation returns Pearson's r of two equal-length samples
func Correlation(x, y []float64) (float64, error) {
	if err := finite(x); err != nil {
		return 0, err
	}
	if err := finite(y); err != nil {
		return 0, err
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("samples differ in length: %d and %d", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, errors.New("correlation needs at least two pairs")
	}
	return stat.Correlation(x, y, nil), nil
}
