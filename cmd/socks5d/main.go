// Command socks5d runs the SOCKS5 fleet proxy: it loads a JSON fleet
// configuration, starts the listener and health prober, and shuts down
// cooperatively on SIGINT (spec.md §6 CLI).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/fclink/socks5fleet/internal/config"
	applog "github.com/fclink/socks5fleet/internal/log"
)

const component = "main"

func main() {
	var (
		input       = pflag.StringP("input", "i", "basic.json", "configuration file path")
		logFile     = pflag.StringP("log", "l", "", "redirect log output to this file in append mode")
		metricsAddr = pflag.StringP("metrics", "m", "", "optional address to serve Prometheus metrics on (e.g. :9090)")
	)
	pflag.Parse()

	if err := godotenv.Load(); err != nil {
		applog.Info(component, fmt.Sprintf("no .env file loaded: %q.", err))
	}

	if *logFile != "" {
		if err := applog.SetLogFile(*logFile); err != nil {
			applog.Error(component, err.Error())
			os.Exit(1)
		}
	}

	server, err := config.Load(*input)
	if err != nil {
		applog.Error(component, fmt.Sprintf("failed to load configuration %s: %q.", *input, err))
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				applog.Error(component, fmt.Sprintf("metrics listener stopped: %q.", err))
			}
		}()
		applog.Info(component, fmt.Sprintf("metrics exposed on %s/metrics.", *metricsAddr))
	}

	if !server.Start() {
		os.Exit(1)
	}
	applog.Info(component, fmt.Sprintf("fleet proxy started from %s.", *input))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	<-sigCh

	applog.Info(component, "shutdown requested.")
	server.Stop()
}
