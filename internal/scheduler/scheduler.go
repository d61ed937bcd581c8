package scheduler

import (
	"database/sql"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/models"
)

// Status holds the result of the last maintenance run.
type Status struct {
	LastRun       time.Time
	NextRun       time.Time
	PlansRepaired int64
	LogsPruned    int64
	IntervalHours int
	RetentionDays int
}

// Scheduler runs periodic maintenance tasks in the background.
type Scheduler struct {
	db      *sql.DB
	metrics *metrics.Manager
	now     func() time.Time
	stop    chan struct{}
	done    chan struct{}

	mu     sync.RWMutex
	status Status
}

// New creates a new Scheduler for the given database. m may be nil.
func New(db *sql.DB, m *metrics.Manager) *Scheduler {
	return &Scheduler{
		db:      db,
		metrics: m,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins running maintenance tasks. It runs an initial pass immediately,
// then repeats at the configured interval. Call Stop to shut down gracefully.
func (s *Scheduler) Start() {
	go s.run()
	log.Info("scheduler: started")
}

// Stop signals the scheduler to shut down and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	log.Info("scheduler: stopped")
}

// Status returns the result of the last maintenance run.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Scheduler) run() {
	defer close(s.done)

	// Run immediately on startup, then at the configured interval.
	s.RunOnce()

	for {
		timer := time.NewTimer(s.interval())

		select {
		case <-timer.C:
			s.RunOnce()
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) interval() time.Duration {
	return time.Duration(models.GetMaintenanceIntervalHours(s.db)) * time.Hour
}

// RunOnce executes every maintenance task synchronously and records the
// result in Status.
func (s *Scheduler) RunOnce() Status {
	log.Debug("scheduler: running maintenance")

	hours := models.GetMaintenanceIntervalHours(s.db)
	retention := models.GetLogRetentionDays(s.db)
	repaired := s.repairActivePlans()
	pruned := s.pruneDailyLogs(retention)

	now := s.now()
	st := Status{
		LastRun:       now,
		NextRun:       now.Add(time.Duration(hours) * time.Hour),
		PlansRepaired: repaired,
		LogsPruned:    pruned,
		IntervalHours: hours,
		RetentionDays: retention,
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"plans_repaired": repaired,
		"logs_pruned":    pruned,
		"next_run":       st.NextRun.Format(time.RFC3339),
	}).Info("scheduler: maintenance complete")
	return st
}

// repairActivePlans restores the single-active invariant left broken by an
// interrupted non-atomic activation.
func (s *Scheduler) repairActivePlans() int64 {
	n, err := models.RepairActivePlans(s.db)
	if err != nil {
		log.WithError(err).Error("scheduler: repair active plans")
		return 0
	}
	if n > 0 {
		log.Warnf("scheduler: deactivated %d superseded active plan(s)", n)
	}
	s.metrics.ObserveMaintenance("repair_plans", n)
	return n
}

// pruneDailyLogs removes logs older than the retention period. Zero days
// keeps everything.
func (s *Scheduler) pruneDailyLogs(days int) int64 {
	if days <= 0 {
		return 0
	}
	cutoff := s.now().AddDate(0, 0, -days).Format("2006-01-02")
	n, err := models.DeleteDailyLogsBefore(s.db, cutoff)
	if err != nil {
		log.WithError(err).Error("scheduler: prune daily logs")
		return 0
	}
	if n > 0 {
		log.Infof("scheduler: pruned %d daily log(s) before %s", n, cutoff)
	}
	s.metrics.ObserveMaintenance("prune_logs", n)
	return n
}
