package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/coap/pkg/discovery"
	"github.com/backkem/coap/pkg/stats"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// options are the global flags.
type options struct {
	configFile string
	envFile    string
	listen     string
	logLevel   string
	metrics    string
	advertise  bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "coapd",
		Short:         "CoAP origin server, caching proxy and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&opts.configFile, "config", "", "YAML config file")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with COAPD_* variables")
	f.StringVar(&opts.listen, "listen", "", "UDP listen address (default :5683)")
	f.StringVar(&opts.logLevel, "log-level", "", "error, warn, info, debug or trace")
	f.StringVar(&opts.metrics, "metrics", "", "serve Prometheus metrics on this address")
	f.BoolVar(&opts.advertise, "advertise", false, "advertise over mDNS")

	root.AddCommand(newServeCommand(opts), newProxyCommand(opts), newGetCommand(opts))
	return root
}

// load reads the config and applies flags set on cmd.
func (o *options) load(cmd *cobra.Command) (Config, logging.LoggerFactory, error) {
	cfg, err := LoadConfig(o.configFile, o.envFile)
	if err != nil {
		return cfg, nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = o.listen
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddr = o.metrics
	}
	if flags.Changed("advertise") {
		cfg.Advertise = o.advertise
	}
	lf, err := cfg.LoggerFactory()
	return cfg, lf, err
}

// service is what serve and proxy run.
type service interface {
	Start() error
	Stop() error
	LocalAddr() net.Addr
	Stats() *stats.Statistics
}

// run starts svc and blocks until SIGINT or SIGTERM, serving metrics and
// mDNS advertisement alongside when configured.
func run(ctx context.Context, cfg Config, lf logging.LoggerFactory, svc service, role discovery.ServiceType, paths func() []string) error {
	log := lf.NewLogger("coapd")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(); err != nil {
		return err
	}
	log.Infof("%s listening on %v", role, svc.LocalAddr())

	if cfg.Advertise {
		port := 0
		if ua, ok := svc.LocalAddr().(*net.UDPAddr); ok {
			port = ua.Port
		}
		adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{Port: port, LoggerFactory: lf})
		if err != nil {
			_ = svc.Stop()
			return err
		}
		defer adv.Close()
		if err := adv.Publish(role, discovery.ServiceTXT{Name: cfg.Name, Paths: paths()}); err != nil {
			log.Warnf("mDNS advertisement failed: %v", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(stats.NewCollector(svc.Stats(), "coap", prometheus.Labels{"role": role.String()}))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Infof("metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return svc.Stop()
	})
	return g.Wait()
}
