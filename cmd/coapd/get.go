package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/backkem/coap/pkg/client"
	"github.com/backkem/coap/pkg/discovery"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/transport"
	"github.com/backkem/coap/pkg/uri"
	"github.com/spf13/cobra"
)

func newGetCommand(opts *options) *cobra.Command {
	var (
		proxy    string
		non      bool
		discover bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "get <uri | path>",
		Short: "Send a GET request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lf, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			target, err := resolveTarget(ctx, args[0], discover)
			if err != nil {
				return err
			}

			var intermediary net.Addr
			if proxy != "" {
				if intermediary, err = net.ResolveUDPAddr("udp", proxy); err != nil {
					return err
				}
			}

			listen := ":0"
			if cmd.Flags().Changed("listen") {
				listen = cfg.Listen
			}
			m, err := messaging.New(messaging.Config{
				ChannelFactory: &transport.UDPFactory{ListenAddr: listen, LoggerFactory: lf},
				LoggerFactory:  lf,
			})
			if err != nil {
				return err
			}
			c, err := client.New(client.Config{Messaging: m, Params: cfg.Params(), LoggerFactory: lf})
			if err != nil {
				return err
			}
			defer c.Close()

			b, err := c.Connect(intermediary, target)
			if err != nil {
				return err
			}
			typ := message.Confirmable
			if non {
				typ = message.NonConfirmable
			}
			req, err := b.CreateRequest(typ, message.GET).Build()
			if err != nil {
				return err
			}
			resp, err := c.SendReceive(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", resp.Code(), resp.Options.String())
			if len(resp.Payload) > 0 {
				fmt.Fprintln(out, string(resp.Payload))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&proxy, "proxy", "", "send through this proxy (host:port)")
	f.BoolVar(&non, "non", false, "send a non-confirmable request")
	f.BoolVar(&discover, "discover", false, "treat the argument as a path and find a server serving it over mDNS")
	f.DurationVar(&timeout, "timeout", 2*time.Minute, "overall request timeout")
	return cmd
}

func resolveTarget(ctx context.Context, arg string, discover bool) (*uri.URI, error) {
	if !discover {
		return uri.Parse(arg)
	}
	r, err := discovery.NewResolver(discovery.ResolverConfig{})
	if err != nil {
		return nil, err
	}
	svc, err := r.First(ctx, discovery.ServiceTypeServer, arg)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", arg, err)
	}
	return svc.URI(arg)
}
