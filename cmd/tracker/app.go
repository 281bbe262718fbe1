package trackerapp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"campus-transport/internal/domain/geo"
	"campus-transport/internal/general/config"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/location"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/general/phoenix"
	"campus-transport/internal/general/rabbitmq"
	"campus-transport/internal/ports"
	"campus-transport/internal/software/channel"
	"campus-transport/internal/software/httpview"
	"campus-transport/internal/software/rider"
	"campus-transport/internal/software/routes"
	"campus-transport/internal/software/tracker"

	"github.com/google/uuid"
)

// Run wires the tracker and its HTTP view and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// one session id correlates every log line of this run
	logger := logger.New("campus-tracker")
	ctx = logger.WithSessionID(ctx, uuid.NewString())

	// load a config from file
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}
	logger.SetDebug(cfg.Log.Debug)

	dialect, err := contracts.DialectByName(cfg.Transport.Dialect)
	if err != nil {
		logger.Error(ctx, "config_invalid", "Unknown protocol dialect", err, map[string]any{"dialect": cfg.Transport.Dialect})
		return err
	}
	if cfg.Transport.VehicleRemovalEvents {
		dialect = dialect.WithVehicleRemoval()
	}

	// resolve the route layout
	rt, err := routes.Load(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "route_load_failed", "Failed to load route", err, map[string]any{"source": cfg.Route.Source})
		return err
	}
	logger.Info(ctx, "route_loaded", "Route ready", map[string]any{
		"source":   cfg.Route.Source,
		"version":  rt.Version(),
		"stops":    len(rt.Stops()),
		"segments": len(rt.Segments()),
	})

	// optional event mirror
	var mirror ports.EventMirror
	if cfg.Mirror.Enabled {
		mq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg.Mirror, logger)
		if err != nil {
			logger.Error(ctx, "mirror_connect_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer mq.Close()

		m := rabbitmq.NewMirror(ctx, mq, mq.Exchange(), cfg.Mirror.Buffer, logger)
		defer m.Close()
		mirror = m
	}

	// set up the tracker
	opts := tracker.Options{
		Channel: channel.Options{
			Endpoint:    cfg.Transport.Endpoint,
			Topic:       cfg.Transport.Topic,
			Dialect:     dialect,
			JoinTimeout: cfg.Transport.JoinTimeout,
			Backoff:     channel.Backoff{Initial: cfg.Transport.ReconnectInitial, Max: cfg.Transport.ReconnectMax},
			Socket: phoenix.Options{
				HeartbeatInterval: cfg.Transport.HeartbeatInterval,
				OutboundBuffer:    cfg.Transport.OutboundBuffer,
			},
		},
		Rider: rider.Options{
			RefreshInterval: cfg.Rider.RefreshInterval,
			Location:        locationOptions(cfg),
		},
	}
	trk := tracker.New(ctx, opts, rt, locationProvider(cfg), mirror, logger)
	trk.Start(ctx)
	defer trk.Stop()

	// set up the HTTP handler and its routes
	httpHandler := httpview.NewHandler(trk, logger, cfg.HTTP.AllowedOrigins)
	limitedHandler := withConcurrencyLimit(maxConcurrent, httpHandler.Routes())

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Campus tracker listening on %s", cfg.HTTP.Addr),
		map[string]any{"addr": cfg.HTTP.Addr, "endpoint": cfg.Transport.Endpoint, "max_concurrent": maxConcurrent},
	)

	// set up the server configurations
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      45 * time.Second, // rider intents may wait on the device location
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"addr": cfg.HTTP.Addr})
			return err
		}
	}

	return nil
}

// locationProvider picks the device location source. "none" leaves rider
// intents failing as unsupported.
func locationProvider(cfg *config.Config) location.Provider {
	switch cfg.Location.Provider {
	case config.LocationStatic:
		return location.Static{Point: geo.Point{Lat: cfg.Location.Lat, Lng: cfg.Location.Lng}}
	case config.LocationHTTP:
		return location.HTTP{URL: cfg.Location.URL}
	default:
		return nil
	}
}

func locationOptions(cfg *config.Config) location.Options {
	opts := location.DefaultOptions()
	opts.Timeout = cfg.Location.Timeout
	return opts
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
