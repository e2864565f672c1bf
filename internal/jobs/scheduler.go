package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"taxotree/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const reconcileLockTTL = 10 * time.Minute

// Scheduler runs the background jobs on fixed intervals. When Redis is
// available a per-job lock keeps multiple instances from running the same
// pass concurrently.
type Scheduler struct {
	scheduler  gocron.Scheduler
	redis      *services.RedisService
	instanceID string
}

// NewScheduler creates a new scheduler. redis may be nil.
func NewScheduler(redis *services.RedisService) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler:  scheduler,
		redis:      redis,
		instanceID: uuid.New().String(),
	}, nil
}

// RegisterReconciler schedules the mirror reconciler to run every interval,
// with one pass shortly after startup.
func (s *Scheduler) RegisterReconciler(job *MirrorReconcilerJob, interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.runLocked("mirror_reconciler", job.Run)
		}),
		gocron.WithStartAt(gocron.WithStartDateTime(time.Now().Add(30*time.Second))),
	)
	if err != nil {
		return fmt.Errorf("failed to register reconciler job: %w", err)
	}

	log.Printf("✅ [SCHEDULER] Registered mirror reconciler (every %v)", interval)
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Println("⏰ Job scheduler started")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() error {
	log.Println("⏹️ Stopping job scheduler...")
	return s.scheduler.Shutdown()
}

// runLocked executes one job pass under a best-effort Redis lock.
func (s *Scheduler) runLocked(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if s.redis != nil {
		lockKey := "job_lock:" + name
		acquired, err := s.redis.AcquireLock(ctx, lockKey, s.instanceID, reconcileLockTTL)
		if err != nil {
			log.Printf("⚠️ [SCHEDULER] Lock check failed for %s, running anyway: %v", name, err)
		} else if !acquired {
			log.Printf("⏭️ [SCHEDULER] Skipping %s, another instance holds the lock", name)
			return
		} else {
			defer func() {
				if err := s.redis.ReleaseLock(context.WithoutCancel(ctx), lockKey, s.instanceID); err != nil {
					log.Printf("⚠️ [SCHEDULER] Failed to release lock for %s: %v", name, err)
				}
			}()
		}
	}

	if err := run(ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Job %s failed: %v", name, err)
	}
}
