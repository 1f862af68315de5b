package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/pospon/api/internal/apihttp"
	"github.com/pospon/api/internal/cfg"
	"github.com/pospon/api/internal/health"
	"github.com/pospon/api/internal/httpmw"
	"github.com/pospon/api/internal/httpserver"
	"github.com/pospon/api/internal/log"
	"github.com/pospon/api/internal/metrics"
	"github.com/pospon/api/internal/opshttp"
	"github.com/pospon/api/internal/otelx"
	"github.com/pospon/api/internal/prof"
	"github.com/pospon/api/internal/ratelimit"
	v "github.com/pospon/api/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix POSPON_ and validate
	cfg.FillFromEnv(flag.CommandLine, "POSPON_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Validate already rejected unknown modes
	mode, _ := cfg.ParseMode(conf.Mode)

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Environment:     string(mode),
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"mode", string(mode),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"cors_origin", conf.CORSOrigin,
		"cors_ssm_param", conf.CORSSSMParam,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		AuthToken:     "",
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	profilingActive := conf.EnablePyroscope && err == nil
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Insecure:    true,
		Sample:      conf.TraceSample,
		Service:     v.AppName,
		Component:   "server",
		Environment: string(mode),
		Version:     vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics / admin listener
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(profilingActive)

	// Build the CORS allow-list. Development echoes any origin back;
	// production takes the static flag origin plus an optional SSM-managed
	// list so the allow-list can change without a redeploy.
	var corsPolicy *httpmw.CORSPolicy
	if mode.IsDevelopment() {
		corsPolicy = &httpmw.CORSPolicy{AllowAny: true}
	} else {
		var origins []string
		if conf.CORSOrigin != "" {
			origins = append(origins, conf.CORSOrigin)
		}
		if conf.CORSSSMParam != "" {
			awsCfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				L.Error(ctx, err, "failed to load AWS config")
				os.Exit(1)
			}
			ssmOrigins, err := cfg.FetchSSMOrigins(ctx, ssm.NewFromConfig(awsCfg), conf.CORSSSMParam)
			if err != nil {
				// the static origin still applies, so degrade rather than refuse to start
				L.Error(ctx, err, "failed to fetch CORS origins from SSM", "param", conf.CORSSSMParam)
			} else {
				origins = append(origins, ssmOrigins...)
			}
		}
		origins = httpmw.NormalizeOrigins(origins)
		if len(origins) == 0 {
			L.Warn(ctx, "no CORS origins configured, all cross-origin requests will be rejected")
		}
		corsPolicy = &httpmw.CORSPolicy{
			AllowedOrigins: origins,
			OnRejected: func(origin string) {
				m.IncCORSRejected()
			},
		}
		L.Info(ctx, "CORS allow-list configured", "origins", origins)
	}

	// Per-IP flood guard, outermost of the limiting stages. Health stays
	// exempt so load balancer probes can never be shed.
	flood := ratelimit.New(ctx,
		ratelimit.WithSkipPaths("/api/health"),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "flood guard triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "flood guard capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	// Fixed-window tiers: one global window over /api, one tighter window
	// over /api/auth keyed on failed attempts only.
	dev := mode.IsDevelopment()

	globalStore := ratelimit.NewMemoryStore(15 * time.Minute)
	globalStore.StartJanitor(ctx)
	globalTier := ratelimit.GlobalTier(dev, globalStore)
	globalTier.SetOnDenied(func(key string) {
		m.IncTierDenied("global")
	})

	authStore := ratelimit.NewMemoryStore(15 * time.Minute)
	authStore.StartJanitor(ctx)
	authTier := ratelimit.AuthTier(dev, authStore)
	authTier.SetOnDenied(func(key string) {
		m.IncTierDenied("auth")
		L.Warn(ctx, "auth rate limit triggered", "key", key)
	})

	// setup the API
	api := apihttp.NewAPI(apihttp.Config{
		Logger:              L,
		Tokens:              apihttp.NewTokenIssuer(conf.JWTSecret),
		Mode:                mode,
		AuthLimiter:         authTier.Middleware,
		OnValidationFailure: m.IncValidationFailed,
	})

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// start the API http server
	apiHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:        L,
		Port:          conf.HTTPPort,
		APIRoutes:     api.RegisterRoutes,
		CORS:          corsPolicy,
		FloodMW:       flood.Middleware,
		GlobalLimitMW: globalTier.Middleware,
		MetricsMW:     m.Middleware,
		UseRecoverMW:  true,
		OnPanic:       m.IncHttpPanic,
		ClientIPOpts:  httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Version:       vi,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		os.Exit(1)
	}
	defer func() { _ = apiHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks, pprof and any future admin APIs
	// sg restricts inbound to internal monitoring infrastructure
	// we reject connections from public ips in middleware to prevent accidental
	// exposure if sg is misconfigured or a load balancer ever sends traffic there
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   gate.Probe(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal so we dont exit
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// wait for ctrl+c / sigterm
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness to drain connections
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// will make sleep time tunable in the future
	L.Info(context.Background(), "sleeping 30s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := apiHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "api http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
