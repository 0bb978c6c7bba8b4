// Command signalpipe-mock runs a local collector for SDK development:
// it verifies signatures, unpacks batches and serves configurable init
// responses, with Prometheus metrics on /metrics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
)

func main() {
	config, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "signalpipe-mock: %v\n", err)
		os.Exit(1)
	}

	log := logging.New()
	log.SetDebug(true)
	log.SetVerbose(true)

	server, err := NewServer(config, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signalpipe-mock: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	server.Routes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	log.Infof("mock collector listening on %s (game key %s)", config.Addr, config.GameKey)
	if err := http.ListenAndServe(config.Addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "signalpipe-mock: %v\n", err)
		os.Exit(1)
	}
}
