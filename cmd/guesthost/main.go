package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/guesthost/internal/infrastructure/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "guesthost: %v\n", err)
		os.Exit(2)
	}

	var opts Options
	flag.StringVar(&opts.Manifest, "manifest", cfg.Permissions.Manifest, "Permission manifest (.json, .yaml or .toml)")
	flag.BoolVar(&opts.AllowAll, "allow-all", cfg.Permissions.AllowAll, "Grant every permission")
	flag.StringVar(&cfg.Admin.Addr, "admin", cfg.Admin.Addr, "Admin API address; empty disables it")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Human-readable debug logs")
	flag.BoolVar(&opts.Schema, "schema", false, "Print the manifest JSON schema and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: guesthost [flags] script.js [more.js ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	opts.Scripts = flag.Args()
	if cfg.Logging.Development {
		cfg.Logging.Level = "debug"
	}

	if !opts.Schema && len(opts.Scripts) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "guesthost: %v\n", err)
		os.Exit(1)
	}
}
