// Package flags holds the CLI flag definitions and setup helpers for the
// recoveryd daemon.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/keyquorum/wallet-recovery-backend/common"
	"github.com/keyquorum/wallet-recovery-backend/httpserver"
)

// SetupLogger builds the service logger from the shared logging flags.
func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer assembles the HTTP server configuration from the shared
// server flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		EnableTracing:            cCtx.String(TracingEndpointFlag.Name) != "",
		TrustProxyHeaders:        cCtx.Bool(TrustProxyFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: []string{"METRICS_ADDR"},
}

var TrustProxyFlag = &cli.BoolFlag{
	Name:    "trust-proxy-headers",
	Value:   false,
	Usage:   "derive client origins from forwarding headers; enable only behind a trusted proxy",
	EnvVars: []string{"TRUST_PROXY_HEADERS"},
}

var TracingEndpointFlag = &cli.StringFlag{
	Name:    "otlp-endpoint",
	Value:   "",
	Usage:   "OTLP/gRPC collector endpoint for traces, empty disables tracing",
	EnvVars: []string{"OTLP_ENDPOINT"},
}

var TracingSampleFlag = &cli.Float64Flag{
	Name:  "trace-sampling",
	Value: 1,
	Usage: "trace sampling rate in [0,1]",
}

// CommonFlags are shared by every binary.
var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
