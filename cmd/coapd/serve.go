package main

import (
	"github.com/backkem/coap/examples/providers"
	"github.com/backkem/coap/pkg/discovery"
	"github.com/backkem/coap/pkg/server"
	"github.com/backkem/coap/pkg/transport"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run an origin server with the example providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lf, err := opts.load(cmd)
			if err != nil {
				return err
			}
			s, err := server.New(server.Config{
				ChannelFactory: &transport.UDPFactory{ListenAddr: cfg.Listen, LoggerFactory: lf},
				Params:         cfg.Params(),
				MaxWorkers:     cfg.MaxWorkers,
				LoggerFactory:  lf,
			})
			if err != nil {
				return err
			}
			providers.Register(s.AddProvider)
			return run(cmd.Context(), cfg, lf, s, discovery.ServiceTypeServer, s.Paths)
		},
	}
}
