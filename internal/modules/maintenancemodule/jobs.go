package maintenancemodule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Job run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// ScheduledJob is a named repeatable job with a recurrence rule. The
// schedule format is "daily@HH:MM" or "weekly@<day>@HH:MM" (day is a
// three-letter weekday).
type ScheduledJob struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:64;uniqueIndex" json:"name"`
	Schedule  string     `gorm:"size:32" json:"schedule"`
	Enabled   bool       `gorm:"default:true" json:"enabled"`
	NextRunAt time.Time  `gorm:"index" json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (ScheduledJob) TableName() string {
	return "scheduled_jobs"
}

// JobRun is one execution attempt chain of a job. A run stays pending
// across retries until it completes or exhausts its attempts.
type JobRun struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	JobName       string     `gorm:"size:64;index" json:"job_name"`
	Status        string     `gorm:"size:16;index" json:"status"`
	Trigger       string     `gorm:"size:16" json:"trigger"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt time.Time  `gorm:"index" json:"next_attempt_at"`
	Error         string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (JobRun) TableName() string {
	return "job_runs"
}

// JobHandler executes one job.
type JobHandler func(ctx context.Context) error

// JobQueue is a database-backed job scheduler. Scheduled jobs spawn runs
// when due; runs retry with exponential backoff until they succeed or
// exhaust their attempt budget. State survives restarts because both
// sides live in the database.
type JobQueue struct {
	db            *gorm.DB
	mu            sync.RWMutex
	handlers      map[string]JobHandler
	maxAttempts   int
	retryBackoff  time.Duration
	manualBackoff time.Duration
	pollInterval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewJobQueue(db *gorm.DB, maxAttempts int, retryBackoff, manualBackoff, pollInterval time.Duration) *JobQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryBackoff <= 0 {
		retryBackoff = time.Minute
	}
	if manualBackoff <= 0 {
		manualBackoff = 10 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &JobQueue{
		db:            db,
		handlers:      make(map[string]JobHandler),
		maxAttempts:   maxAttempts,
		retryBackoff:  retryBackoff,
		manualBackoff: manualBackoff,
		pollInterval:  pollInterval,
	}
}

// RegisterRepeatable installs a handler and upserts its schedule. An
// existing job row with the same name is replaced so schedule changes in
// configuration take effect on restart.
func (q *JobQueue) RegisterRepeatable(name, schedule string, handler JobHandler) error {
	next, err := nextRun(schedule, time.Now())
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}

	q.mu.Lock()
	q.handlers[name] = handler
	q.mu.Unlock()

	if err := q.db.Where("name = ?", name).Delete(&ScheduledJob{}).Error; err != nil {
		return fmt.Errorf("failed to replace job %s: %w", name, err)
	}
	job := ScheduledJob{Name: name, Schedule: schedule, Enabled: true, NextRunAt: next}
	if err := q.db.Create(&job).Error; err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	logger.Info("Registered job %s (%s), next run %s", name, schedule, next.Format(time.RFC3339))
	return nil
}

// Enqueue creates a manual run for a job, due immediately.
func (q *JobQueue) Enqueue(name string) (*JobRun, error) {
	q.mu.RLock()
	_, known := q.handlers[name]
	q.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("unknown job %q", name)
	}

	run := JobRun{
		JobName:       name,
		Status:        RunPending,
		Trigger:       TriggerManual,
		MaxAttempts:   q.maxAttempts,
		NextAttemptAt: time.Now(),
	}
	if err := q.db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", name, err)
	}
	return &run, nil
}

// Start launches the poll loop.
func (q *JobQueue) Start() {
	q.stopCh = make(chan struct{})
	q.wg.Add(1)
	go q.loop()
}

// Stop terminates the poll loop and waits for the in-flight run.
func (q *JobQueue) Stop() {
	if q.stopCh != nil {
		close(q.stopCh)
		q.wg.Wait()
		q.stopCh = nil
	}
}

func (q *JobQueue) loop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.spawnDueRuns()
			q.processPendingRuns()
		}
	}
}

// spawnDueRuns creates a run for every due scheduled job and advances its
// next-run time.
func (q *JobQueue) spawnDueRuns() {
	var jobs []ScheduledJob
	if err := q.db.Where("enabled = ? AND next_run_at <= ?", true, time.Now()).Find(&jobs).Error; err != nil {
		logger.Warn("Failed to list due jobs: %v", err)
		return
	}

	for _, job := range jobs {
		run := JobRun{
			JobName:       job.Name,
			Status:        RunPending,
			Trigger:       TriggerScheduled,
			MaxAttempts:   q.maxAttempts,
			NextAttemptAt: time.Now(),
		}
		if err := q.db.Create(&run).Error; err != nil {
			logger.Warn("Failed to spawn run for job %s: %v", job.Name, err)
			continue
		}

		next, err := nextRun(job.Schedule, time.Now())
		if err != nil {
			logger.Error("Job %s has unparseable schedule %q, disabling", job.Name, job.Schedule)
			q.db.Model(&job).Update("enabled", false)
			continue
		}
		now := time.Now()
		q.db.Model(&job).Updates(map[string]interface{}{
			"next_run_at": next,
			"last_run_at": &now,
		})
	}
}

// processPendingRuns executes every pending run that is due.
func (q *JobQueue) processPendingRuns() {
	var runs []JobRun
	if err := q.db.Where("status = ? AND next_attempt_at <= ?", RunPending, time.Now()).
		Order("created_at").Find(&runs).Error; err != nil {
		logger.Warn("Failed to list pending runs: %v", err)
		return
	}

	for i := range runs {
		select {
		case <-q.stopCh:
			return
		default:
		}
		q.execute(&runs[i])
	}
}

func (q *JobQueue) execute(run *JobRun) {
	q.mu.RLock()
	handler, known := q.handlers[run.JobName]
	q.mu.RUnlock()
	if !known {
		run.Status = RunFailed
		run.Error = "no handler registered"
		q.db.Save(run)
		return
	}

	now := time.Now()
	run.Status = RunRunning
	run.StartedAt = &now
	run.Attempts++
	q.db.Save(run)

	ctx, cancel := context.WithTimeout(context.Background(), q.pollInterval*4)
	err := handler(ctx)
	cancel()

	finished := time.Now()
	if err == nil {
		run.Status = RunCompleted
		run.Error = ""
		run.FinishedAt = &finished
		q.db.Save(run)
		logger.Info("Job %s completed (attempt %d)", run.JobName, run.Attempts)
		return
	}

	run.Error = err.Error()
	if run.Attempts >= run.MaxAttempts {
		run.Status = RunFailed
		run.FinishedAt = &finished
		q.db.Save(run)
		logger.Error("Job %s failed permanently after %d attempts: %v", run.JobName, run.Attempts, err)
		return
	}

	run.Status = RunPending
	run.NextAttemptAt = finished.Add(q.backoff(run.Trigger, run.Attempts))
	q.db.Save(run)
	logger.Warn("Job %s attempt %d failed, retrying at %s: %v",
		run.JobName, run.Attempts, run.NextAttemptAt.Format(time.RFC3339), err)
}

// backoff returns the delay before the next attempt: base doubled per
// completed attempt. Manual runs use a short base so an operator sees
// the retry happen.
func (q *JobQueue) backoff(trigger string, attempts int) time.Duration {
	base := q.retryBackoff
	if trigger == TriggerManual {
		base = q.manualBackoff
	}
	return base * (1 << (attempts - 1))
}

// RecentRuns returns recent runs for diagnostics, newest first.
func (q *JobQueue) RecentRuns(limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []JobRun
	err := q.db.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// Jobs returns the registered scheduled jobs.
func (q *JobQueue) Jobs() ([]ScheduledJob, error) {
	var jobs []ScheduledJob
	err := q.db.Order("name").Find(&jobs).Error
	return jobs, err
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// nextRun computes the next occurrence of a schedule after from.
func nextRun(schedule string, from time.Time) (time.Time, error) {
	parts := strings.Split(schedule, "@")
	switch {
	case len(parts) == 2 && parts[0] == "daily":
		hour, minute, err := parseClock(parts[1])
		if err != nil {
			return time.Time{}, err
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case len(parts) == 3 && parts[0] == "weekly":
		day, ok := weekdays[strings.ToLower(parts[1])]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown weekday %q", parts[1])
		}
		hour, minute, err := parseClock(parts[2])
		if err != nil {
			return time.Time{}, err
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		for next.Weekday() != day || !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	default:
		return time.Time{}, fmt.Errorf("unsupported schedule format %q", schedule)
	}
}

func parseClock(clock string) (int, int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", clock)
	}
	return hour, minute, nil
}
