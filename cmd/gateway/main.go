// Trust Evaluation Gateway
// HTTP gateway that scores every record access and protects identifying
// fields before they reach storage.
package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/internal/api"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/internal/config"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/internal/version"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/pipeline"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/privacy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/store"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/trust"
)

var (
	listenAddr = flag.String("listen", ":8080", "HTTP listen address")
	dbPath     = flag.String("db", "", "Database path (default: ~/.local/share/zthc/zthc.db)")
)

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	flag.Parse()

	log.Printf("Trust Evaluation Gateway v%s starting...", version.Version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Open the durable attempt/auth history
	path := *dbPath
	if path == "" {
		path = cfg.DBPath
	}
	db, err := store.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	sessions := session.NewMemoryStore()
	history := audit.NewRingLog()

	// Audit events go to syslog when the daemon is reachable; in-memory-only
	// audit is the documented degraded mode.
	var backends []audit.EventEmitter
	if sys, err := audit.NewSyslogEmitter(audit.SyslogConfig{AppName: "zthc-gateway"}); err != nil {
		log.Printf("Syslog unavailable, audit events stay in-process: %v", err)
	} else {
		defer sys.Close()
		backends = append(backends, sys)
	}
	emitter := audit.NewMultiEmitter(logger, backends...)

	engine, err := trust.NewEngine(trust.Config{
		Logger:             logger,
		Sessions:           sessions,
		Events:             history,
		BusinessHours:      cfg.BusinessHours,
		CacheTTL:           cfg.CacheTTL,
		AllowThreshold:     cfg.AllowThreshold,
		ChallengeThreshold: cfg.ChallengeThreshold,
	})
	if err != nil {
		log.Fatalf("Failed to build trust engine: %v", err)
	}

	authorizer, err := authz.NewAuthorizer(authz.Config{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to load policies: %v", err)
	}

	catalog := api.NewCatalog()

	pipeCfg := pipeline.Config{
		Logger:        logger,
		Sessions:      sessions,
		Trust:         engine,
		Assignments:   authorizer,
		History:       history,
		Durable:       db,
		Emitter:       emitter,
		BusinessHours: cfg.BusinessHours,
		Resources:     catalog.LookupResource,
	}

	if cfg.FieldEncryption {
		keyStr, err := privacy.LoadOrGenerateKey(privacy.DefaultKeyPath())
		if err != nil {
			log.Fatalf("Failed to load field key: %v", err)
		}
		cipher, err := privacy.NewFieldCipherFromKeyString(keyStr)
		if err != nil {
			log.Fatalf("Failed to initialize field cipher: %v", err)
		}
		pipeCfg.Cipher = cipher
	}

	if cfg.Noise {
		pipeCfg.Noise = privacy.NewInjector(cfg.Epsilon, privacy.NewBudget(cfg.PrivacyCeiling))
	}

	if cfg.Homomorphic {
		kp, err := privacy.GenerateKeyPair(0)
		if err != nil {
			log.Fatalf("Failed to generate aggregation key pair: %v", err)
		}
		agg, err := privacy.NewAggregator(kp, privacy.DefaultAggregatorWorkers)
		if err != nil {
			log.Fatalf("Failed to build aggregator: %v", err)
		}
		pipeCfg.Aggregator = agg
	}

	pipe, err := pipeline.New(pipeCfg)
	if err != nil {
		log.Fatalf("Failed to build access pipeline: %v", err)
	}

	server := api.NewServer(api.Config{
		Logger:   logger,
		Sessions: sessions,
		Pipeline: pipe,
		History:  history,
		Emitter:  emitter,
		Durable:  db,
		Catalog:  catalog,
	})

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: loggingMiddleware(mux),
	}

	// Handle shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		httpServer.Close()
	}()

	log.Printf("HTTP server listening on %s (business hours %s)", *listenAddr, cfg.BusinessHours)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Gateway stopped")
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusResponseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(sw, r)
		log.Printf("%s %s %d %dms", r.Method, r.URL.Path, sw.statusCode, time.Since(start).Milliseconds())
	})
}
