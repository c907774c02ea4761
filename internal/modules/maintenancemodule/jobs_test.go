package maintenancemodule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openJobDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ScheduledJob{}, &JobRun{}))
	return db
}

func noopHandler(ctx context.Context) error { return nil }

func TestNextRunDaily(t *testing.T) {
	from := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	next, err := nextRun("daily@15:30", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 15, 30, 0, 0, time.UTC), next)

	// Already past today's slot, rolls to tomorrow.
	next, err = nextRun("daily@03:00", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), next)
}

func TestNextRunWeekly(t *testing.T) {
	// A Sunday.
	from := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, from.Weekday())

	next, err := nextRun("weekly@sun@12:00", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), next)

	// Past this week's slot, rolls a full week.
	next, err = nextRun("weekly@sun@04:00", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 6, 4, 0, 0, 0, time.UTC), next)

	next, err = nextRun("weekly@wed@04:00", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 2, 4, 0, 0, 0, time.UTC), next)
}

func TestNextRunRejectsMalformedSchedules(t *testing.T) {
	for _, schedule := range []string{
		"", "hourly@10:00", "daily", "daily@25:00", "daily@10:75",
		"weekly@someday@10:00", "weekly@sun", "daily@noon",
	} {
		_, err := nextRun(schedule, time.Now())
		assert.Error(t, err, schedule)
	}
}

func TestRegisterRepeatableReplacesExisting(t *testing.T) {
	db := openJobDB(t)
	queue := NewJobQueue(db, 3, time.Minute, 10*time.Second, 15*time.Second)

	require.NoError(t, queue.RegisterRepeatable("cleanup", "daily@03:00", noopHandler))
	require.NoError(t, queue.RegisterRepeatable("cleanup", "daily@05:00", noopHandler))

	jobs, err := queue.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "daily@05:00", jobs[0].Schedule)
	assert.True(t, jobs[0].Enabled)
}

func TestRegisterRepeatableRejectsBadSchedule(t *testing.T) {
	queue := NewJobQueue(openJobDB(t), 3, time.Minute, 10*time.Second, 15*time.Second)
	err := queue.RegisterRepeatable("cleanup", "whenever", noopHandler)
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestEnqueueManualRun(t *testing.T) {
	queue := NewJobQueue(openJobDB(t), 3, time.Minute, 10*time.Second, 15*time.Second)
	require.NoError(t, queue.RegisterRepeatable("cleanup", "daily@03:00", noopHandler))

	run, err := queue.Enqueue("cleanup")
	require.NoError(t, err)
	assert.Equal(t, RunPending, run.Status)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, 3, run.MaxAttempts)
	assert.False(t, run.NextAttemptAt.After(time.Now()))
}

func TestEnqueueUnknownJob(t *testing.T) {
	queue := NewJobQueue(openJobDB(t), 3, time.Minute, 10*time.Second, 15*time.Second)
	_, err := queue.Enqueue("nonexistent")
	assert.ErrorContains(t, err, "unknown job")
}

func TestExecuteSuccess(t *testing.T) {
	db := openJobDB(t)
	queue := NewJobQueue(db, 3, time.Minute, 10*time.Second, 15*time.Second)

	calls := 0
	require.NoError(t, queue.RegisterRepeatable("job", "daily@03:00", func(ctx context.Context) error {
		calls++
		return nil
	}))

	run, err := queue.Enqueue("job")
	require.NoError(t, err)
	queue.execute(run)

	assert.Equal(t, 1, calls)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 1, run.Attempts)
	assert.NotNil(t, run.FinishedAt)
}

func TestExecuteRetriesThenFails(t *testing.T) {
	db := openJobDB(t)
	queue := NewJobQueue(db, 2, time.Minute, 10*time.Second, 15*time.Second)

	require.NoError(t, queue.RegisterRepeatable("flaky", "daily@03:00", func(ctx context.Context) error {
		return errors.New("boom")
	}))

	run, err := queue.Enqueue("flaky")
	require.NoError(t, err)

	queue.execute(run)
	assert.Equal(t, RunPending, run.Status)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, "boom", run.Error)
	assert.True(t, run.NextAttemptAt.After(time.Now()))

	queue.execute(run)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, 2, run.Attempts)
}

func TestExecuteWithoutHandlerFails(t *testing.T) {
	db := openJobDB(t)
	queue := NewJobQueue(db, 3, time.Minute, 10*time.Second, 15*time.Second)

	run := &JobRun{JobName: "ghost", Status: RunPending, MaxAttempts: 3}
	require.NoError(t, db.Create(run).Error)

	queue.execute(run)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "no handler registered", run.Error)
}

func TestBackoffDoubling(t *testing.T) {
	queue := NewJobQueue(openJobDB(t), 5, time.Minute, 10*time.Second, 15*time.Second)

	assert.Equal(t, time.Minute, queue.backoff(TriggerScheduled, 1))
	assert.Equal(t, 2*time.Minute, queue.backoff(TriggerScheduled, 2))
	assert.Equal(t, 4*time.Minute, queue.backoff(TriggerScheduled, 3))

	assert.Equal(t, 10*time.Second, queue.backoff(TriggerManual, 1))
	assert.Equal(t, 20*time.Second, queue.backoff(TriggerManual, 2))
}

func TestSpawnDueRunsAdvancesSchedule(t *testing.T) {
	db := openJobDB(t)
	queue := NewJobQueue(db, 3, time.Minute, 10*time.Second, 15*time.Second)
	require.NoError(t, queue.RegisterRepeatable("due", "daily@03:00", noopHandler))

	// Force the job due.
	require.NoError(t, db.Model(&ScheduledJob{}).Where("name = ?", "due").
		Update("next_run_at", time.Now().Add(-time.Hour)).Error)

	queue.spawnDueRuns()

	var runs []JobRun
	require.NoError(t, db.Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, TriggerScheduled, runs[0].Trigger)

	var job ScheduledJob
	require.NoError(t, db.First(&job, "name = ?", "due").Error)
	assert.True(t, job.NextRunAt.After(time.Now()))
	assert.NotNil(t, job.LastRunAt)

	// Not due yet, spawns nothing new.
	queue.spawnDueRuns()
	require.NoError(t, db.Find(&runs).Error)
	assert.Len(t, runs, 1)
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	db := openJobDB(t)
	queue := NewJobQueue(db, 3, time.Minute, 10*time.Second, 15*time.Second)
	require.NoError(t, queue.RegisterRepeatable("job", "daily@03:00", noopHandler))

	for i := 0; i < 5; i++ {
		_, err := queue.Enqueue("job")
		require.NoError(t, err)
	}

	runs, err := queue.RecentRuns(3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
