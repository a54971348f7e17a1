package commands

import (
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/devserver"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// ServeCmd starts the development server.
type ServeCmd struct {
	Host         string `help:"Override dev_server.host"`
	Port         int    `short:"p" help:"Override dev_server.port"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable the push channel and client script injection"`
	WriteToDisk  bool   `name:"write-to-disk" help:"Also write every generation to output.path"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, mode, logger, err := root.Load(config.ModeDevelopment)
	if err != nil {
		return err
	}
	s.apply(cfg)

	services, err := pipeline.OpenServices(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = services.Close() }()

	var (
		registry *prom.Registry
		recorder metrics.Recorder
	)
	if cfg.Metrics.Enabled {
		registry = prom.NewRegistry()
		registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	opts := pipeline.Options{
		Mode:     mode,
		Target:   emit.NewMemoryTarget(),
		Services: services,
		Recorder: recorder,
		Logger:   logger,
	}
	if cfg.DevServer.WriteToDisk {
		opts.OutputDir = cfg.Output.Path
	}
	svc, err := pipeline.NewService(cfg, opts)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out(g), "Serving %s build on http://%s:%d\n", mode, cfg.DevServer.Host, cfg.DevServer.Port)
	srv := devserver.New(cfg, svc, devserver.Options{Registry: registry, Recorder: recorder, Logger: logger})
	return srv.Start(ctx)
}

func (s *ServeCmd) apply(cfg *config.Config) {
	if s.Host != "" {
		cfg.DevServer.Host = s.Host
	}
	if s.Port != 0 {
		cfg.DevServer.Port = s.Port
	}
	if s.NoLiveReload {
		off := false
		cfg.DevServer.LiveReload = &off
	}
	if s.WriteToDisk {
		cfg.DevServer.WriteToDisk = true
	}
}
