package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/eventstream/api"
	"github.com/customeros/eventstream/config"
	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/consumer"
	"github.com/customeros/eventstream/internal/cron"
	"github.com/customeros/eventstream/internal/geo"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/reporter"
	"github.com/customeros/eventstream/internal/repository"
	"github.com/customeros/eventstream/internal/tracing"
	"github.com/customeros/eventstream/internal/utils"
	"github.com/customeros/eventstream/services"
)

type Server struct {
	config       *config.Config
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	consumer     *consumer.KafkaConsumer
	cronManager  *cron.CronManager
	locator      *geo.MaxMindLocator
	reporter     interfaces.ErrorReporter
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, eventstreamDB *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize error reporting
	errorReporter := reporter.NewReporter(cfg.SentryConfig, appLogger)

	// Initialize repositories. The token store is optional; without it
	// token counters stay in memory.
	var repos *repository.Repositories
	if eventstreamDB != nil {
		repos = repository.InitRepositories(eventstreamDB)
	}

	// Initialize the geo locator, pulling the database from R2 when the
	// local file is missing
	locator, geoRefresher, err := initGeoLocator(cfg.GeoConfig, appLogger)
	if err != nil {
		return nil, err
	}

	// Initialize the ingestion pipeline and the Kafka consumer
	pipeline := consumer.NewPipeline(cfg.KafkaConfig.ChannelBufferSize)
	kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.KafkaConfig, appLogger, locator, errorReporter, pipeline)
	if err != nil {
		return nil, err
	}

	// Initialize services
	svcs, err := services.InitServices(cfg.AppConfig.RabbitMQURL, appLogger, repos, &pipeline, cfg.LivestreamConfig, cfg.StatsConfig)
	if err != nil {
		return nil, err
	}

	// Initialize the cron manager with the jobs this deployment can run
	var refresher interfaces.GeoDatabaseRefresher
	if geoRefresher != nil {
		refresher = geoRefresher
	}
	var inventory interfaces.TokenInventoryService
	if repos != nil {
		inventory = svcs.TokensService
	}
	cronManager := cron.NewCronManager(cfg, appLogger, newKubernetesClient(cfg, appLogger), refresher, inventory)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		router:       router,
		services:     svcs,
		repositories: repos,
		consumer:     kafkaConsumer,
		cronManager:  cronManager,
		locator:      locator,
		reporter:     errorReporter,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

// initGeoLocator opens the local city database. When the file is missing
// and R2 credentials are configured, it downloads the database first. The
// returned refresher is nil when refresh is not configured.
func initGeoLocator(cfg *geo.Config, log logger.Logger) (*geo.MaxMindLocator, *geo.Refresher, error) {
	var fetcher *geo.DatabaseFetcher
	if cfg.RefreshEnabled() {
		f, err := geo.NewDatabaseFetcher(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		fetcher = f
	}

	locator, err := geo.NewMaxMindLocator(cfg.DBPath)
	if err != nil && fetcher != nil {
		log.Warnf("GeoIP database unavailable at %s, fetching from R2: %v", cfg.DBPath, err)
		if fetchErr := fetcher.Fetch(context.Background()); fetchErr != nil {
			return nil, nil, fetchErr
		}
		locator, err = geo.NewMaxMindLocator(cfg.DBPath)
	}
	if err != nil {
		return nil, nil, err
	}

	var refresher *geo.Refresher
	if fetcher != nil {
		refresher = geo.NewRefresher(fetcher, locator)
	}
	return locator, refresher, nil
}

// newKubernetesClient builds an in-cluster client for cron leader election.
// Returns nil outside a cluster, which puts the cron manager in local mode.
func newKubernetesClient(cfg *config.Config, log logger.Logger) kubernetes.Interface {
	if !cfg.AppConfig.LeaderElectionEnabled {
		return nil
	}
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		log.Warnf("Leader election enabled but in-cluster config unavailable: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		log.Warnf("Failed to create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) Initialize(ctx context.Context) error {
	// Setup API routes
	api.RegisterRoutes(ctx, s.router, s.services, s.repositories, s.config.AppConfig.JWTSecret)

	// Start scheduled jobs
	if err := s.cronManager.Start(s.config.AppConfig.PodName, s.config.AppConfig.PodNamespace); err != nil {
		return err
	}

	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		// Mark span as failed
		ext.Error.Set(span, true)

		// Log panic details
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	// Create root context for the application. Background work, including
	// the relay publisher, stamps events with the service's app source.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = utils.SetAppSourceInContext(ctx, "eventstream")

	// Initialize server components
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	// Start the Kafka consumer with panic recovery
	log.Println("Starting Kafka consumer...")
	go s.wrapGoroutine("kafka_consumer", func() {
		s.consumer.Consume()
	})
	log.Println("✅ Kafka consumer started successfully")

	// Start the pipeline services with panic recovery
	go s.wrapGoroutine("livestream_service", func() {
		s.services.LivestreamService.Run(ctx)
	})
	go s.wrapGoroutine("stats_service", func() {
		s.services.StatsService.Run(ctx)
	})
	go s.wrapGoroutine("tokens_service", func() {
		s.services.TokensService.Run(ctx)
	})
	log.Println("✅ Pipeline services started successfully")

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	})
	log.Println("✅ HTTP server started successfully")
	log.Println("Eventstream is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown(cancel)
}

func (s *Server) waitForShutdown(cancel context.CancelFunc) error {
	defer s.recoverWithJaeger("shutdown")

	// Set up signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Wait for termination signal
	<-stop
	log.Println("Shutting down...")

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Stop reading from Kafka first so no new events enter the pipeline
	log.Println("Stopping Kafka consumer...")
	s.consumer.Close()
	log.Println("✅ Kafka consumer stopped successfully")

	// Stop the pipeline services
	cancel()

	// Persist pending token counters before the process exits
	if s.repositories != nil {
		if err := s.services.TokensService.Flush(shutdownCtx); err != nil {
			log.Printf("❌ Token inventory flush error: %v", err)
		} else {
			log.Println("✅ Token inventory flushed successfully")
		}
	}

	// Shut down HTTP server. Connected SSE viewers hold their streams open,
	// so this can run into the shutdown deadline.
	log.Println("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	} else {
		log.Println("✅ HTTP server shut down successfully")
	}

	// Stop scheduled jobs
	s.cronManager.Stop()

	// Close the relay publisher
	if s.services.EventsService != nil {
		if err := s.services.EventsService.Close(); err != nil {
			log.Printf("❌ Events service shutdown error: %v", err)
		}
	}

	// Release the geoip reader, flush pending error reports, close the tracer
	s.locator.Close()
	s.reporter.Flush(2 * time.Second)
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	log.Println("✅ Shutdown complete")
	return nil
}
