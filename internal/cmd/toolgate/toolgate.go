// Package toolgate parses toolgate command flags and launches the service.
package toolgate

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/toolgate/internal/platform/cmd"
	platformotel "github.com/louisbranch/toolgate/internal/platform/otel"
	"github.com/louisbranch/toolgate/internal/platform/timeouts"
	"github.com/louisbranch/toolgate/internal/services/toolgate/service"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage/factory"
)

// Config holds toolgate command configuration.
type Config struct {
	Transport        string        `env:"TOOLGATE_TRANSPORT"          envDefault:"http"`
	HTTPAddr         string        `env:"TOOLGATE_HTTP_ADDR"          envDefault:"localhost:8787"`
	Store            string        `env:"TOOLGATE_STORE"              envDefault:"memory"`
	DBPath           string        `env:"TOOLGATE_DB_PATH"            envDefault:"data/toolgate.db"`
	DefaultSessionID string        `env:"TOOLGATE_DEFAULT_SESSION_ID" envDefault:"stdio"`
	DebugEndpoints   bool          `env:"TOOLGATE_DEBUG_ENDPOINTS"    envDefault:"false"`
	AllowedHosts     []string      `env:"TOOLGATE_ALLOWED_HOSTS"      envSeparator:","`
	SessionTTL       time.Duration `env:"TOOLGATE_SESSION_TTL"        envDefault:"1h"`
	MetricsEnabled   bool          `env:"TOOLGATE_METRICS_ENABLED"    envDefault:"true"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Session store: memory or sqlite")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path (for sqlite store)")
	fs.StringVar(&cfg.DefaultSessionID, "session", cfg.DefaultSessionID, "Session id for transports without sessions")
	fs.BoolVar(&cfg.DebugEndpoints, "debug", cfg.DebugEndpoints, "Mount POST /debug/unlock/{sessionID}")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "Serve Prometheus metrics at GET /metrics (HTTP transport)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Idle time before an HTTP session is closed")
	fs.Func("allow-host", "Additional allowed Host/Origin (repeatable)", func(value string) error {
		cfg.AllowedHosts = append(cfg.AllowedHosts, value)
		return nil
	})
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch service.TransportKind(strings.ToLower(strings.TrimSpace(c.Transport))) {
	case service.TransportStdio, service.TransportHTTP:
	default:
		return fmt.Errorf("transport %q is not supported", c.Transport)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	return nil
}

// Run opens the session store and serves toolgate until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceToolgate, func(ctx context.Context) error {
		store, closeStore, err := factory.Open(factory.Config{
			Backend: factory.Backend(cfg.Store),
			Path:    cfg.DBPath,
		})
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer func() {
			if err := closeStore(); err != nil {
				log.Printf("close session store: %v", err)
			}
		}()
		log.Printf("Using %s session store", cfg.Store)

		transport := service.TransportKind(strings.ToLower(strings.TrimSpace(cfg.Transport)))
		var metricsHandler http.Handler
		if cfg.MetricsEnabled && transport == service.TransportHTTP {
			handler, shutdown, err := platformotel.SetupMetrics(ctx, entrypoint.ServiceToolgate)
			if err != nil {
				return fmt.Errorf("setup metrics: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.TelemetryShutdown)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Printf("metrics shutdown: %v", err)
				}
			}()
			metricsHandler = handler
		}

		return service.Run(ctx, service.Config{
			Transport:        transport,
			HTTPAddr:         cfg.HTTPAddr,
			DefaultSessionID: cfg.DefaultSessionID,
			DebugEndpoints:   cfg.DebugEndpoints,
			AllowedHosts:     cfg.AllowedHosts,
			SessionTTL:       cfg.SessionTTL,
			MetricsHandler:   metricsHandler,
		}, store)
	})
}
