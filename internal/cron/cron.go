package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/customeros/eventstream/config"
	"github.com/customeros/eventstream/interfaces"
	cron_config "github.com/customeros/eventstream/internal/cron/config"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/tracing"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

// CONSTANTS
const (
	// GroupEventstream is the group for eventstream related jobs
	GroupEventstream = "eventstream"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupEventstream: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	geo      interfaces.GeoDatabaseRefresher
	tokens   interfaces.TokenInventoryService
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, geo interfaces.GeoDatabaseRefresher, tokens interfaces.TokenInventoryService) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		k8s:    k8s,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		geo:    geo,
		tokens: tokens,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	// If k8s client is nil or we're in local development, start in local mode
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	// Create the leader election lock
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "eventstream-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	// Channel to track leader election errors
	errCh := make(chan error, 1)

	// Start leader election
	go func() {
		// Try leader election
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		// Start leader election
		ctx := context.Background()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
		// Leader election seems to be working, continue normally
	}

	return nil
}

// Stop gracefully stops the cron manager. Safe to call twice: leadership
// loss and process shutdown can both get here.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			// Wait for jobs to finish
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	// Register heartbeat job
	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	// Add GeoIP database refresh job. Skipped when no refresher is wired,
	// which is the case without R2 credentials.
	if cronConfig.CronScheduleGeoIPRefresh != "" && cm.geo != nil {
		id, err := c.AddFunc(cronConfig.CronScheduleGeoIPRefresh, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupEventstream].Lock()
			defer jobLocks.locks[GroupEventstream].Unlock()
			cm.refreshGeoDatabase()
		})
		if err != nil {
			cm.log.Fatalf("Could not add GeoIP refresh cron job: %v", err)
		}
		cm.jobIDs["geoip_refresh"] = id
		cm.log.Infof("Registered GeoIP refresh job with schedule: %s", cronConfig.CronScheduleGeoIPRefresh)
	}

	// Add token inventory flush job. Skipped when the store is not
	// configured and counters live in memory only.
	if cronConfig.CronScheduleTokenFlush != "" && cm.tokens != nil {
		id, err := c.AddFunc(cronConfig.CronScheduleTokenFlush, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupEventstream].Lock()
			defer jobLocks.locks[GroupEventstream].Unlock()
			cm.flushTokenInventory()
		})
		if err != nil {
			cm.log.Fatalf("Could not add token flush cron job: %v", err)
		}
		cm.jobIDs["token_flush"] = id
		cm.log.Infof("Registered token flush job with schedule: %s", cronConfig.CronScheduleTokenFlush)
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) refreshGeoDatabase() {
	cm.log.Info("Running GeoIP database refresh")

	// Create a background context for the operation
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.refreshGeoDatabase")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	// Pull the latest city database and swap it into the live locator
	if err := cm.geo.Refresh(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to refresh GeoIP database: %v", err)
		return
	}

	cm.log.Info("Successfully refreshed GeoIP database")
}

func (cm *CronManager) flushTokenInventory() {
	cm.log.Info("Running token inventory flush")

	// Create a background context for the operation
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.flushTokenInventory")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	// Persist pending token counters to the store
	if err := cm.tokens.Flush(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to flush token inventory: %v", err)
		return
	}

	cm.log.Info("Successfully flushed token inventory")
}
