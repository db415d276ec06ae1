package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"talentscan/internal/adapter/llm"
	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
	"talentscan/internal/infra/logger"
	"talentscan/internal/infra/metrics"
	"talentscan/internal/infra/tracer"
	"talentscan/internal/usecase/airouter"
)

const defaultConfigPath = "./talentscan.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "talentscan: [%s] %v\n", domain.ErrorCodeOf(err), err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	metricsAddr string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "talentscan",
		Short: "Assess developer profiles with routed LLM providers",
		Long: `talentscan routes each generation task to a preferred hosted LLM and falls
back through the other configured providers when one fails.

Providers become available when their credential is set, e.g. GROQ_API_KEY,
GEMINI_API_KEY, TOGETHER_API_KEY, HUGGINGFACE_API_KEY, OPENAI_API_KEY,
ANTHROPIC_API_KEY. Run 'talentscan doctor' to check your setup.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logger level (debug, info, warn, error)")

	root.AddCommand(
		newGenerateCmd(flags),
		newAnalyzeCmd(flags),
		newProvidersCmd(flags),
		newDoctorCmd(flags),
	)
	return root
}

// runtime holds everything a command needs once config is loaded.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   *airouter.Router
	registry *llm.Registry
	closers  []func(context.Context) error
}

func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.logger.Warn("shutdown", "error", err)
		}
	}
}

// setup loads config and builds the logger, tracer, metrics and router.
func setup(ctx context.Context, flags *globalFlags, stderr io.Writer) (*runtime, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	if flags.logLevel != "" {
		cfg.Logger.Level = flags.logLevel
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = flags.metricsAddr
	}

	rt := &runtime{cfg: cfg}

	if cfg.Logger.Output == "" || cfg.Logger.Output == "stderr" {
		rt.logger = logger.NewWithWriter(stderr, cfg.Logger)
	} else {
		log, closeLog, err := logger.New(cfg.Logger)
		if err != nil {
			return nil, err
		}
		rt.logger = log
		rt.closers = append(rt.closers, func(context.Context) error { return closeLog() })
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	rt.closers = append(rt.closers, shutdownTracer)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.NewRegistry())
		rt.closers = append(rt.closers, serveMetrics(cfg.Metrics.Addr, collector, rt.logger))
	}

	rt.router, rt.registry, err = initRouter(ctx, cfg, rt.logger, collector)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// serveMetrics exposes /metrics until the returned shutdown func runs.
func serveMetrics(addr string, collector *metrics.Collector, log *slog.Logger) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	log.Info("metrics server listening", "addr", addr)
	return srv.Shutdown
}
