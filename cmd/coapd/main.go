// coapd runs a CoAP origin server, a caching forward proxy, or a one-shot
// client.
//
// Usage:
//
//	coapd serve [--listen :5683] [--advertise]
//	coapd proxy [--listen :5683] [--origin coap://host/path ...] [--cache-store file]
//	coapd get [--proxy host:port] [--non] coap://host/path
//	coapd get --discover path
//
// Settings are read from a YAML file (--config), then from a .env file and
// COAPD_* environment variables, then from flags.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
