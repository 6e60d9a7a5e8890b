package main

import (
	"fmt"

	"github.com/backkem/coap/pkg/cache"
	"github.com/backkem/coap/pkg/discovery"
	"github.com/backkem/coap/pkg/server"
	"github.com/backkem/coap/pkg/transport"
	"github.com/backkem/coap/pkg/uri"
	"github.com/spf13/cobra"
)

func newProxyCommand(opts *options) *cobra.Command {
	var origins []string
	var store string
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run a caching forward proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lf, err := opts.load(cmd)
			if err != nil {
				return err
			}
			cfg.Origins = append(cfg.Origins, origins...)
			if cmd.Flags().Changed("cache-store") {
				cfg.CacheStore = store
			}
			if len(cfg.Origins) == 0 {
				return fmt.Errorf("no origins configured")
			}

			pc := server.ProxyConfig{
				Config: server.Config{
					ChannelFactory: &transport.UDPFactory{ListenAddr: cfg.Listen, LoggerFactory: lf},
					Params:         cfg.Params(),
					MaxWorkers:     cfg.MaxWorkers,
					LoggerFactory:  lf,
				},
				CacheSizeThreshold: cfg.CacheSize,
			}
			if cfg.CacheStore != "" {
				st, err := cache.OpenStore(cfg.CacheStore)
				if err != nil {
					return err
				}
				defer st.Close()
				pc.Store = st
			}

			p, err := server.NewProxy(pc)
			if err != nil {
				return err
			}
			for _, raw := range cfg.Origins {
				u, err := uri.Parse(raw)
				if err != nil {
					return fmt.Errorf("origin %q: %w", raw, err)
				}
				if _, err := p.AddProxy(u, true); err != nil {
					return err
				}
			}
			return run(cmd.Context(), cfg, lf, p, discovery.ServiceTypeProxy, p.Origins)
		},
	}
	cmd.Flags().StringArrayVar(&origins, "origin", nil, "origin resource URI to proxy (repeatable)")
	cmd.Flags().StringVar(&store, "cache-store", "", "bbolt file persisting the cache across restarts")
	return cmd
}
