package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/birdayz/socflow"
	"github.com/birdayz/socflow/kmetrics"
	"github.com/birdayz/socflow/ksubmit"
	"github.com/birdayz/socflow/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("socflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		debug       = fs.Bool("debug", false, "run with debug logging and debug execution")
		localMode   = fs.Bool("local_mode", false, "run the topology in-process instead of submitting it to the cluster")
		configPath  = fs.String("config_path", socflow.DefaultConfigPath, "configuration root")
		generator   = fs.Bool("generator_spout", false, "read from the test generator instead of Kafka")
		topology    = fs.String("topology", "", "topology directory below <config_path>/topologies")
		metricsAddr = fs.String("metrics_addr", "", "serve prometheus metrics and pprof on this address")
		dryRun      = fs.Bool("dry_run", false, "print the assembled topology instead of submitting it")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return exitUsage
	}

	zlog := log.New(*debug)
	logger := log.Logr(zlog)

	mode := ksubmit.Distributed
	if *localMode {
		mode = ksubmit.Local
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := kmetrics.New(reg)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to register metrics")
		return exitError
	}
	if *metricsAddr != "" {
		srv := metricsServer(*metricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zlog.Error().Err(err).Str("addr", *metricsAddr).Msg("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	app, err := socflow.New(
		socflow.WithLogr(logger),
		socflow.WithMode(mode),
		socflow.WithDebug(*debug),
		socflow.WithConfigPath(*configPath),
		socflow.WithSubdir(*topology),
		socflow.WithGeneratorSource(*generator),
		socflow.WithMetrics(metrics),
	)
	if errors.Is(err, socflow.ErrTopologyRequired) {
		fmt.Fprintln(stderr, "-topology is required")
		fs.Usage()
		return exitUsage
	}
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to create app")
		return exitError
	}

	if *dryRun {
		d, err := app.Plan(ctx)
		if err != nil {
			zlog.Error().Err(err).Msg("Failed to assemble topology")
			return exitError
		}
		data, err := d.Graph.MaskedJSON()
		if err != nil {
			zlog.Error().Err(err).Msg("Failed to encode topology")
			return exitError
		}
		fmt.Fprintln(stdout, string(data))
		return exitOK
	}

	zlog.Info().Str("topology", *topology).Str("mode", mode.String()).Msg("Deploying topology")
	if err := app.Deploy(ctx); err != nil {
		zlog.Error().Err(err).Msg("Deployment failed")
		return exitError
	}
	zlog.Info().Msg("Deployment finished")
	return exitOK
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return &http.Server{Addr: addr, Handler: mux}
}
