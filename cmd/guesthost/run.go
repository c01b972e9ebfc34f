package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/guesthost/internal/api/http"
	"github.com/GriffinCanCode/guesthost/internal/ext"
	"github.com/GriffinCanCode/guesthost/internal/hostapi"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/config"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/server"
	"github.com/GriffinCanCode/guesthost/internal/jsvalue"
	"github.com/GriffinCanCode/guesthost/internal/permissions"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// Options are the command-line choices layered over Config
type Options struct {
	Scripts  []string
	Manifest string
	AllowAll bool
	Schema   bool
}

// Result is what guesthost prints for each script
type Result struct {
	Script string      `json:"script"`
	Value  interface{} `json:"value,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func run(ctx context.Context, cfg *config.Config, opts Options, stdout io.Writer) error {
	if opts.Schema {
		schema, err := permissions.ManifestSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(schema))
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()
	backend, allowlist, err := buildPermissions(opts)
	if err != nil {
		return err
	}
	audit := permissions.NewAudited(backend,
		permissions.WithAuditLogger(logger.Component("permissions")),
		permissions.WithAuditMetrics(metrics),
		permissions.WithAuditCapacity(cfg.Permissions.AuditCapacity),
	)

	var resolver hostapi.Resolver = hostapi.CleanResolver{}
	if cfg.Permissions.ResolveSymlinks {
		resolver = hostapi.SymlinkResolver{}
	}
	container := hostapi.New(audit,
		hostapi.WithResolver(resolver),
		hostapi.WithLogger(logger.Component("hostapi")),
	)
	client := ext.NewFetchClient(cfg.Fetch.Client(), logger.Component("fetch"))

	size := cfg.Runtime.PoolSize
	if len(opts.Scripts) < size {
		size = len(opts.Scripts)
	}
	pool, err := sandbox.NewPool(cfg.Runtime.Sandbox(), size,
		sandbox.WithLogger(logger.Component("sandbox")),
		sandbox.WithMetrics(metrics),
		sandbox.WithExtensions(ext.All(container, client)...),
	)
	if err != nil {
		return fmt.Errorf("failed to create runtime pool: %w", err)
	}
	defer pool.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Admin.Addr != "" {
		handlers := apihttp.NewHandlers(apihttp.Deps{
			Allowlist: allowlist,
			Audit:     audit,
			Metrics:   metrics,
			Breaker:   client.Breaker(),
			Logger:    logger.Component("admin"),
		})
		routerCfg := apihttp.DefaultRouterConfig()
		routerCfg.RateLimit.RequestsPerSecond = cfg.Admin.RPS
		routerCfg.RateLimit.Burst = cfg.Admin.Burst
		routerCfg.LogLevel = logger.Level()
		admin := server.New(cfg.Admin.Addr, apihttp.NewRouter(handlers, routerCfg), logger.Component("admin"))
		// the admin server outlives the scripts and stops on signal
		g.Go(func() error { return admin.Run(gctx) })
	}

	var (
		mu      sync.Mutex
		results = make([]Result, len(opts.Scripts))
		failed  bool
	)
	var scripts errgroup.Group
	for i, path := range opts.Scripts {
		i, path := i, path
		scripts.Go(func() error {
			res := Result{Script: path}
			err := pool.Run(gctx, func(rt *sandbox.Runtime) error {
				v, err := runScript(gctx, rt, path)
				res.Value = v
				return err
			})
			if err != nil {
				res.Error = err.Error()
				logger.Warn("Script failed", zap.String("script", path), zap.Error(err))
			}
			mu.Lock()
			results[i] = res
			failed = failed || err != nil
			mu.Unlock()
			return nil
		})
	}
	_ = scripts.Wait()

	for _, res := range results {
		out, err := sonic.ConfigStd.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to encode result of %s: %w", res.Script, err)
		}
		if _, err := fmt.Fprintln(stdout, string(out)); err != nil {
			return err
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if failed {
		return errors.New("one or more scripts failed")
	}
	return nil
}

// buildPermissions returns the backend guests are checked against and, when
// it is mutable, the allowlist behind it
func buildPermissions(opts Options) (permissions.WebPermissions, *permissions.Allowlist, error) {
	switch {
	case opts.AllowAll:
		return permissions.Default{}, nil, nil
	case opts.Manifest != "":
		m, err := permissions.LoadManifest(opts.Manifest)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load manifest: %w", err)
		}
		a := m.Allowlist()
		return a, a, nil
	default:
		a := permissions.NewAllowlist()
		return a, a, nil
	}
}

// runScript evaluates the file and, when it completes with a promise,
// awaits it
func runScript(ctx context.Context, rt *sandbox.Runtime, path string) (interface{}, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := jsvalue.Eval(ctx, rt, path, string(src))
	if err != nil {
		return nil, err
	}
	kind, err := v.Type(rt)
	if err != nil {
		return nil, err
	}
	if kind != "promise" {
		return jsvalue.Decode[interface{}](rt, v)
	}
	p, err := jsvalue.NewPromise[interface{}](rt, v)
	if err != nil {
		return nil, err
	}
	return p.Await(ctx, rt)
}
