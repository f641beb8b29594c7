// Package main is the entry point for the Vigil host monitoring server.
// It wires the telemetry pipeline, session gateway, container control and
// HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"
	"nfcunha/vigil/core/repository"
	"nfcunha/vigil/core/service"
	"nfcunha/vigil/database"
	"nfcunha/vigil/handler"
	"nfcunha/vigil/utils/config"
	"nfcunha/vigil/utils/docker"
	"nfcunha/vigil/utils/hostinfo"
	"nfcunha/vigil/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", "", "path to a .env file with VIGIL_* settings")
	procPath := pflag.String("proc", "", "procfs mount point (default /proc)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.Logging.Level, cfg.Server.Mode)
	log.Info().Str("version", cfg.Server.Version).Msg("Starting Vigil")

	// Initialize database
	if err := database.Initialize(cfg.Database.Path); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Sessions and credentials
	sessionRepo := repository.NewSessionRepository(database.GetDB())
	userRepo := repository.NewUserRepository(database.GetDB())
	verifier := service.NewBcryptVerifier(userRepo)
	if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
		if err := verifier.EnsureUser(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, models.RoleAdmin); err != nil {
			log.Fatal().Err(err).Msg("Failed to provision admin user")
		}
		log.Info().Str("user", cfg.Auth.AdminUsername).Msg("Admin user provisioned")
	}
	auth := service.NewAuthService(sessionRepo, verifier, m, cfg.Session.TTL, cfg.Auth.LookupTimeout)

	limiter := service.NewRateLimiter(map[service.Bucket]service.BucketLimit{
		service.BucketAuth: {Limit: cfg.RateLimit.AuthLimit, Window: cfg.RateLimit.Window},
		service.BucketAPI:  {Limit: cfg.RateLimit.APILimit, Window: cfg.RateLimit.Window},
	}, m)

	// Host telemetry
	host, err := hostinfo.NewProcSource(*procPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open procfs")
	}
	// Pushed snapshots and on-demand polls keep separate delta windows, so
	// polling never shortens the interval behind a pushed CPU or network rate.
	pushSampler := service.NewSampler(host, m)
	pollSampler := service.NewSampler(host, m)

	hub := service.NewHub(m)
	publisher := service.NewTelemetryPublisher(pushSampler, hub, cfg.Telemetry.BroadcastInterval, m)

	// The container backend is optional: without it listings are empty and
	// actions fail with the backend's reason.
	var (
		workloadBackend service.WorkloadBackend = unavailableBackend{}
		usage           service.UsageSource
		logSource       service.ContainerLogSource
		versionSource   service.VersionSource
		statsCache      *service.StatsCache
	)
	dockerClient, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		log.Warn().Err(err).Msg("Container management unavailable")
	} else {
		defer dockerClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := dockerClient.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("Docker daemon not reachable yet")
		}
		cancel()

		statsCache = service.NewStatsCache(dockerClient, cfg.Backend.StatsInterval, cfg.Backend.Timeout)
		workloadBackend = dockerClient
		usage = statsCache
		logSource = dockerClient
		versionSource = dockerClient
	}

	workloads := service.NewWorkloadController(workloadBackend, usage, hub, m, service.WorkloadControllerConfig{
		Timeout:          cfg.Backend.Timeout,
		StopTimeout:      cfg.Backend.StopTimeout,
		BatchConcurrency: cfg.Backend.BatchConcurrency,
	})
	system := service.NewSystemService(host, host, versionSource, cfg.Server.Version, cfg.Backend.Timeout)
	logs := service.NewLogService(map[string]string{
		"system": cfg.Logs.SystemPath,
		"auth":   cfg.Logs.AuthPath,
		"kernel": cfg.Logs.KernelPath,
		"docker": cfg.Logs.DockerPath,
	}, logSource, cfg.Logs.MaxLines)
	watcher := service.NewSecurityWatcher(system, hub, cfg.Telemetry.SecurityInterval)

	// Background loops
	go hub.Run(ctx)
	go publisher.Run(ctx)
	go watcher.Run(ctx)
	if statsCache != nil && cfg.Features.Workloads {
		go statsCache.Run(ctx)
	}
	go service.NewSweeper("sessions", cfg.Session.SweepInterval, sessionRepo.DeleteExpired).Run(ctx)
	go service.NewSweeper("rate-limit", cfg.RateLimit.Window, service.RateLimitSweep(limiter)).Run(ctx)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	var metricsHandler http.Handler
	if cfg.Features.Metrics {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	engine := handler.NewRouter(handler.Dependencies{
		Config:    cfg,
		Auth:      auth,
		Limiter:   limiter,
		Sampler:   pollSampler,
		System:    system,
		Workloads: workloads,
		Logs:      logs,
		Hub:       hub,
		Metrics:   metricsHandler,
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("base_path", cfg.Server.BasePath).Msg("Vigil server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("Server stopped gracefully")
}
