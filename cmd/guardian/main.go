package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"guardian/internal/api"
	"guardian/internal/auth"
	"guardian/internal/bus"
	"guardian/internal/config"
	"guardian/internal/encryption"
	"guardian/internal/engine"
	"guardian/internal/enrich"
	"guardian/internal/risk"
	"guardian/internal/session"
	"guardian/internal/storage"
	"guardian/internal/stream"
	"guardian/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/guardian.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real env always wins
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("starting guardian",
		"version", "0.1.0",
		"listen", cfg.Listen,
		"encryption_enabled", cfg.Encryption.Enabled,
	)

	cipher, err := encryption.New(cfg.CipherConfig())
	if err != nil {
		slog.Error("failed to initialize cipher", "error", err)
		os.Exit(1)
	}

	store := session.NewStore(cipher, cfg.RetentionPolicy())
	eng := engine.New(store)
	supervisor := session.NewSupervisor(store, cfg.Retention.SweepInterval)

	// Audit trail
	var auditStore *storage.AuditStore
	if cfg.Audit.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0755); err != nil {
			slog.Error("failed to create data directory", "error", err, "path", cfg.Audit.Path)
			os.Exit(1)
		}
		auditStore, err = storage.NewAuditStore(cfg.Audit.Path)
		if err != nil {
			slog.Error("failed to initialize audit storage", "error", err)
			os.Exit(1)
		}
		defer auditStore.Close()
	}

	// Risk event bus
	var riskBus *bus.Bus
	if cfg.Bus.Enabled {
		riskBus, err = bus.New(context.Background(), bus.Config{
			Addr:          cfg.Bus.Addr,
			Password:      cfg.Bus.Password,
			DB:            cfg.Bus.DB,
			ChannelPrefix: cfg.Bus.ChannelPrefix,
		})
		if err != nil {
			slog.Error("failed to connect risk bus", "error", err)
			os.Exit(1)
		}
		defer riskBus.Close()
	}

	// Live dashboard stream
	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub()
	}

	// Risk result fan-out: audit, bus and stream all observe dispatches.
	eng.OnRisk(func(sessionID string, module session.Module, resp risk.Response) {
		update := bus.Update{
			SessionID: sessionID,
			Module:    string(module),
			Score:     resp.Score,
			Level:     string(resp.Level),
			Timestamp: time.Now().UTC(),
		}
		if auditStore != nil {
			if err := auditStore.Record(storage.AuditRiskScored, sessionID, update.Module, map[string]any{
				"score": resp.Score,
				"level": update.Level,
			}); err != nil {
				slog.Error("failed to record risk audit event", "error", err)
			}
		}
		if riskBus != nil {
			riskBus.Publish(context.Background(), update)
		}
		if hub != nil {
			hub.Broadcast(update)
		}
	})

	// Telemetry (graceful degradation if initialization fails)
	var tp *telemetry.Provider
	if cfg.Telemetry.Enabled {
		tp, err = telemetry.NewProvider(telemetry.Config{
			Enabled:     cfg.Telemetry.Enabled,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			slog.Warn("telemetry initialization failed, continuing without tracing", "error", err)
			tp = nil
		}
	}

	if auditStore != nil || tp != nil {
		supervisor.SetExpiredCallback(func(sessionID, reason string) {
			if auditStore != nil {
				if err := auditStore.Record(storage.AuditSessionExpired, sessionID, "", map[string]any{
					"reason": reason,
				}); err != nil {
					slog.Error("failed to record expiry audit event", "error", err)
				}
			}
			if tp != nil {
				tp.RecordSessionExpired(context.Background(), sessionID, reason)
			}
		})
	}
	if auditStore != nil {
		supervisor.SetTrimmedCallback(func(count int) {
			if err := auditStore.Record(storage.AuditEventsTrimmed, "", "", map[string]any{
				"count": count,
			}); err != nil {
				slog.Error("failed to record trim audit event", "error", err)
			}
		})
	}

	// Accounts
	var userStore *auth.Store
	var tokens *auth.TokenIssuer
	if cfg.Auth.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Auth.DBPath), 0755); err != nil {
			slog.Error("failed to create data directory", "error", err, "path", cfg.Auth.DBPath)
			os.Exit(1)
		}
		userStore, err = auth.NewStore(cfg.Auth.DBPath, cipher, cfg.Auth.JWTSecret)
		if err != nil {
			slog.Error("failed to initialize user storage", "error", err)
			os.Exit(1)
		}
		defer userStore.Close()
		tokens = auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	// LLM enrichment for the direct call assessment endpoint only
	var enricher *enrich.Client
	if cfg.Enrichment.Enabled {
		enricher, err = enrich.New(enrich.Config{
			Endpoint: cfg.Enrichment.Endpoint,
			APIKey:   cfg.Enrichment.APIKey,
			Model:    cfg.Enrichment.Model,
			Timeout:  cfg.Enrichment.Timeout,
		})
		if err != nil {
			slog.Error("failed to initialize enrichment client", "error", err)
			os.Exit(1)
		}
		slog.Info("enrichment enabled", "model", cfg.Enrichment.Model)
	}

	opts := api.Options{
		Auth:     userStore,
		Tokens:   tokens,
		Enricher: enricher,
	}
	if hub != nil {
		opts.Stream = hub
	}
	if auditStore != nil {
		opts.Audit = auditStore
	}
	if tp != nil {
		opts.Telemetry = tp
	}
	handler := api.New(eng, cipher, opts)

	// Retention supervisor
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go supervisor.Run(ctx)

	// Audit rows age out on the PII window, on the same cadence as the
	// session sweeps.
	if auditStore != nil && cfg.Retention.PIIRetentionDays > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Retention.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := auditStore.Cleanup(cfg.Retention.PIIRetentionDays); err != nil {
						slog.Error("audit cleanup failed", "error", err)
					}
				}
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // stream endpoint holds connections open
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errChan:
		slog.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()
	if !supervisor.Wait(5 * time.Second) {
		slog.Warn("retention supervisor did not stop in time")
	}

	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown error", "error", err)
		}
	}

	slog.Info("guardian stopped")
}
