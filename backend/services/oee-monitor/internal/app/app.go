package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "plantoee/backend/libs/db"
	libredis "plantoee/backend/libs/redis"
	"plantoee/backend/services/oee-monitor/internal/clients"
	"plantoee/backend/services/oee-monitor/internal/config"
	httpserver "plantoee/backend/services/oee-monitor/internal/http"
	"plantoee/backend/services/oee-monitor/internal/http/handlers"
	"plantoee/backend/services/oee-monitor/internal/metrics"
	"plantoee/backend/services/oee-monitor/internal/observability"
	"plantoee/backend/services/oee-monitor/internal/pipeline"
	"plantoee/backend/services/oee-monitor/internal/repository"
	"plantoee/backend/services/oee-monitor/internal/selection"
	"plantoee/backend/services/oee-monitor/internal/stream"
	"plantoee/backend/services/oee-monitor/internal/ws"
)

// App wires oee-monitor dependencies.
type App struct {
	server      *httpserver.Server
	pipeline    *pipeline.Pipeline
	hub         *ws.Hub
	unfollow    func()
	cancel      context.CancelFunc
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	formatter, err := metrics.NewTimeFormatter(cfg.Display.Locale, loc)
	if err != nil {
		return nil, err
	}

	retry := clients.DefaultRetryPolicy()
	retry.Retries = cfg.Backend.Retries
	backend := clients.NewBackendClient(
		cfg.Backend.BaseURL,
		cfg.Backend.APIKey,
		clients.NewDefaultHTTPClient(cfg.BackendTimeout()),
		retry,
		logger,
	)

	a := &App{logger: logger}

	var store selection.SessionStore = selection.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		a.redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		store = selection.NewRedisStore(a.redisClient, cfg.Session.ID, cfg.SessionTTL())
	} else {
		logger.Info("redis not configured, selection kept in memory")
	}

	var microstops pipeline.MicrostopStore = backend
	if cfg.Database.DSN != "" {
		a.db, err = libdb.NewPostgresDB(cfg.Database.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		microstops = repository.NewMicrostopRepository(a.db)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := observability.NewMetrics(registry)

	header := http.Header{}
	if cfg.Stream.APIKey != "" {
		header.Set("x-api-key", cfg.Stream.APIKey)
	}

	a.pipeline = pipeline.New(pipeline.Deps{
		URL:    cfg.Stream.URL,
		Dialer: stream.NewWSDialer(cfg.HandshakeTimeout(), header),
		Clock:  stream.SystemClock(),
		Policy: stream.Policy{
			MaxRetries:  cfg.Stream.MaxRetries,
			BaseDelay:   cfg.BaseDelay(),
			CapDelay:    cfg.CapDelay(),
			DialTimeout: cfg.HandshakeTimeout(),
		},
		Catalog:    backend,
		Microstops: microstops,
		Binder:     selection.NewBinder(store, logger),
		Formatter:  formatter,
		TopN:       cfg.Pareto.TopN,
		Recorder:   recorder,
		Logger:     logger,
	})

	a.hub = ws.NewHub(cfg.PingInterval(), logger)
	a.unfollow = a.hub.Follow(a.pipeline)

	viewerCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	wsServer := ws.NewServer(viewerCtx, a.hub, cfg.WriteTimeout(), cfg.WS.AllowedOrigins, logger)

	machinesHandlers := handlers.NewMachinesHandlers(a.pipeline, logger)
	dashboardHandlers := handlers.NewDashboardHandlers(a.pipeline, logger)
	microstopsHandlers := handlers.NewMicrostopsHandlers(a.pipeline, logger)

	routes := httpserver.Routes{
		Health:          handlers.NewHealthHandler(),
		Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Machines:        machinesHandlers.List,
		SelectionGet:    machinesHandlers.Current,
		SelectionPut:    machinesHandlers.Select,
		SelectionDelete: machinesHandlers.Deselect,
		Snapshot:        dashboardHandlers.Snapshot,
		MicrostopCreate: microstopsHandlers.Create,
		MicrostopUpdate: microstopsHandlers.Update,
		MicrostopDelete: microstopsHandlers.Delete,
		StreamReconnect: dashboardHandlers.Reconnect,
		DashboardSocket: wsServer.HandleWS,
	}

	router := httpserver.NewRouter(routes)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	logger.Info("oee-monitor configured",
		zap.String("locale", formatter.Locale()),
		zap.String("timezone", loc.String()),
		zap.Bool("redis", a.redisClient != nil),
		zap.Bool("postgres", a.db != nil),
		zap.Int("max_retries", cfg.Stream.MaxRetries),
	)
	return a, nil
}

// Run starts the pipeline, the viewer keepalive and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	if err := a.pipeline.Start(ctx); err != nil {
		return err
	}
	go a.hub.Start(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.unfollow != nil {
		a.unfollow()
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if a.hub != nil {
		a.hub.CloseAll()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
