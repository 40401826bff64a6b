package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TriggerScheduled marks jobs submitted by a trigger rather than an operator
const TriggerScheduled = "scheduled"

// JobSubmitter queues named jobs. *Scheduler satisfies it.
type JobSubmitter interface {
	Submit(name, trigger string) (*Job, error)
}

// MonthlyTriggerConfig holds configuration for the monthly trigger
type MonthlyTriggerConfig struct {
	// JobName is the registered job submitted each month
	JobName string

	// Day, Hour and Minute are the UTC fire time within the month
	Day    int
	Hour   int
	Minute int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultMonthlyTriggerConfig fires on the 1st at 00:00 UTC
func DefaultMonthlyTriggerConfig(jobName string) MonthlyTriggerConfig {
	return MonthlyTriggerConfig{
		JobName:       jobName,
		Day:           1,
		CheckInterval: time.Minute,
	}
}

// Validate checks the configuration
func (c MonthlyTriggerConfig) Validate() error {
	switch {
	case c.JobName == "":
		return fmt.Errorf("%w: job name is required", ErrInvalidConfig)
	case c.Day < 1 || c.Day > 28:
		return fmt.Errorf("%w: day must be between 1 and 28", ErrInvalidConfig)
	case c.Hour < 0 || c.Hour > 23:
		return fmt.Errorf("%w: hour must be between 0 and 23", ErrInvalidConfig)
	case c.Minute < 0 || c.Minute > 59:
		return fmt.Errorf("%w: minute must be between 0 and 59", ErrInvalidConfig)
	case c.CheckInterval <= 0:
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// MonthlyTrigger submits a job once per calendar month at a fixed UTC time
type MonthlyTrigger struct {
	config    MonthlyTriggerConfig
	submitter JobSubmitter
	logger    *zap.Logger
	nowFunc   func() time.Time

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	isRunning    bool
	lastRunMonth string
}

// NewMonthlyTrigger creates a new monthly trigger
func NewMonthlyTrigger(config MonthlyTriggerConfig, submitter JobSubmitter, logger *zap.Logger) (*MonthlyTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonthlyTrigger{
		config:    config,
		submitter: submitter,
		logger:    logger,
		nowFunc:   time.Now,
	}, nil
}

// Start starts the trigger loop
func (c *MonthlyTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Monthly trigger started",
		zap.String("job", c.config.JobName),
		zap.Int("day", c.config.Day),
		zap.Int("hour", c.config.Hour),
		zap.Int("minute", c.config.Minute),
		zap.Duration("check_interval", c.config.CheckInterval),
	)

	return nil
}

// Stop stops the trigger loop
func (c *MonthlyTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Monthly trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MonthlyTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits the job when the fire time of the current month has
// passed on the configured day and the job has not fired this month.
// Reports whether a job was submitted.
func (c *MonthlyTrigger) checkAndTrigger() bool {
	now := c.nowFunc().UTC()
	month := now.Format("2006-01")

	c.mu.Lock()
	if c.lastRunMonth == month {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	fireAt := time.Date(now.Year(), now.Month(), c.config.Day, c.config.Hour, c.config.Minute, 0, 0, time.UTC)
	if now.Day() != c.config.Day || now.Before(fireAt) {
		return false
	}

	job, err := c.submitter.Submit(c.config.JobName, TriggerScheduled)
	if err != nil {
		// Leave lastRunMonth unset so the next tick tries again
		c.logger.Error("Failed to submit monthly job",
			zap.String("job", c.config.JobName),
			zap.Error(err))
		return false
	}

	c.mu.Lock()
	c.lastRunMonth = month
	c.mu.Unlock()

	c.logger.Info("Monthly job submitted",
		zap.String("job", c.config.JobName),
		zap.String("job_id", job.ID.String()),
		zap.String("month", month))
	return true
}
