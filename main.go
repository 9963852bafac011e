package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	assethttp "medasset-cloud/internal/assets/interfaces/http"
	"medasset-cloud/internal/eventing"
	eventingrepo "medasset-cloud/internal/eventing/infrastructure/postgres"
	"medasset-cloud/internal/ingestion/application"
	appevents "medasset-cloud/internal/ingestion/application/events"
	ingesthttp "medasset-cloud/internal/ingestion/interfaces/http"
	"medasset-cloud/internal/observability/metrics"

	assetpg "medasset-cloud/internal/assets/infrastructure/postgres"
	ingestpg "medasset-cloud/internal/ingestion/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ingestCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("ingest config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	baseBus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(appevents.EventIngested{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore,
		eventing.WithDispatcherLogger(logger))
	publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.FacilityID, baseBus)

	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()
	go dispatcher.Run(drainCtx, 30*time.Second, ingestCfg.OutboxDispatchLimit)

	stateRepo := assetpg.NewAssetStateRepository()
	healthRepo := assetpg.NewHealthRepository()

	derived, err := application.NewDerivedStateUpdater(
		stateRepo,
		healthRepo,
		logger,
		application.WithPMIntervalDays(ingestCfg.PMIntervalDays),
	)
	if err != nil {
		logger.Fatalf("derived updater error: %v", err)
	}

	service, err := application.NewService(
		db,
		application.Sinks{
			Telemetry:   ingestpg.NewTelemetryRepository(),
			RTLS:        ingestpg.NewRTLSRepository(),
			Maintenance: ingestpg.NewMaintenanceRepository(),
			Errors:      ingestpg.NewErrorRepository(),
		},
		derived,
		logger,
		application.WithPublisher(publisher),
		application.WithBatchConcurrency(ingestCfg.BatchConcurrency),
		application.WithMaxBatchSize(ingestCfg.MaxBatchSize),
	)
	if err != nil {
		logger.Fatalf("ingestion service error: %v", err)
	}

	eventing.Subscribe(baseBus, eventing.EventTypeOf[appevents.EventIngested](), "ingest.lag", func(ctx context.Context, event any) error {
		evt, ok := event.(appevents.EventIngested)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		metrics.ObserveConsumerLag("ingest."+evt.Stream, time.Since(evt.OccurredAt))
		return nil
	}, processedStore)

	ingestHandler, err := ingesthttp.NewHandler(service, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	stateHandler, err := assethttp.NewStateHandler(db, stateRepo, healthRepo, logger)
	if err != nil {
		logger.Fatalf("asset state handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ingest/", ingestHandler)
	mux.Handle("/api/v1/assets/state", stateHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	FacilityID  string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		FacilityID:  getenvDefault("FACILITY_ID", "facility-demo"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
