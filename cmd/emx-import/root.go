package main

import (
	"context"
	"errors"
	"io"
	"os"

	"emxloader/internal/archive"
	"emxloader/internal/config"
	"emxloader/internal/hugeset"
	"emxloader/internal/logging"
	"emxloader/internal/security"
	"emxloader/internal/service"
	"emxloader/internal/storage"
	"emxloader/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	EnvFiles    []string
	MetricsFile string
	Trace       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "emx-import",
		Short:         "Import EMX metadata and data into a store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", config.DefaultEnvFiles, "env files read before the environment")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write metrics to this file on exit (prometheus textfile, or expvar JSON)")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "write stage spans as JSON lines to stderr")
	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newReindexCmd(opts))
	cmd.AddCommand(newDescribeCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	return cmd
}

// app is everything a command needs, built from the environment.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	store    domain.PersistentStore
	enforcer *security.Enforcer
	svc      *service.Service
	registry *prometheus.Registry
	expvar   *service.ExpvarRecorder
	opts     *rootOptions
}

func openApp(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.EnvFiles...)
	if err != nil {
		return nil, err
	}
	level, err := cfg.LogrusLevel()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(level, cfg.LogFormat, stderr)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, cfg.Storage, logging.Component(log, "storage"))
	if err != nil {
		return nil, err
	}
	archiveStore, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	enforcer, err := security.NewEnforcer(cfg.PolicyFile, logging.Component(log, "security"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var (
		recorders service.MultiMetrics
		registry  *prometheus.Registry
		expvarRec *service.ExpvarRecorder
	)
	if cfg.PrometheusEnabled() {
		registry = prometheus.NewRegistry()
		prom, err := service.NewPrometheusRecorder(cfg.MetricsNamespace, registry)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		recorders = append(recorders, prom)
	}
	if cfg.ExpvarEnabled() {
		expvarRec = service.NewExpvarRecorder("")
		recorders = append(recorders, expvarRec)
	}
	svcOpts := []service.Option{
		service.WithLogger(logrus.NewEntry(log)),
		service.WithPermissions(enforcer),
		service.WithAuthorizer(enforcer),
		service.WithArchiver(archive.NewArchiver(archiveStore)),
		service.WithMetrics(recorders),
		service.WithSpillOptions(hugeset.Options{
			SpillThreshold: cfg.HugeSet.SpillThreshold,
			TempDir:        cfg.HugeSet.TempDir,
		}),
	}
	if opts.Trace {
		svcOpts = append(svcOpts, service.WithTracer(service.NewJSONTracer(stderr)))
	}
	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		enforcer: enforcer,
		svc:      service.New(store, svcOpts...),
		registry: registry,
		expvar:   expvarRec,
		opts:     opts,
	}, nil
}

// Close writes the metrics file, when requested, and closes the store. The
// prometheus textfile takes the path; with both exporters the expvar snapshot
// goes next to it with a .json suffix.
func (a *app) Close() error {
	var errs []error
	if path := a.opts.MetricsFile; path != "" {
		if a.registry != nil {
			errs = append(errs, prometheus.WriteToTextfile(path, a.registry))
			path += ".json"
		}
		if a.expvar != nil {
			errs = append(errs, a.expvar.WriteFile(path))
		}
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// withApp opens the app for the duration of run.
func withApp(cmd *cobra.Command, opts *rootOptions, run func(*app) error) (err error) {
	stderr := cmd.ErrOrStderr()
	if stderr == nil {
		stderr = os.Stderr
	}
	a, err := openApp(cmd.Context(), opts, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return run(a)
}
