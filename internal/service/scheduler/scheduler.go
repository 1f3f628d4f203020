package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/config"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/service"
)

// ErrAlreadyRunning is returned by Start when the cron job is registered
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Accounts yields connected mailboxes and their access tokens
type Accounts interface {
	ConnectedAccounts(ctx context.Context) ([]model.OAuthToken, error)
	ValidAccessToken(ctx context.Context, userID string, provider model.Provider) (string, error)
}

// Processor runs the ingest pipeline for one mailbox
type Processor interface {
	ProcessEmails(ctx context.Context, userID string, provider model.Provider, accessToken string, daysBack int) (*service.ProcessResult, error)
}

// Scheduler manages the periodic mailbox processing
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    config.SchedulerConfig
	daysBack  int
	accounts  Accounts
	processor Processor
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
	lastRun   time.Time
	lastMu    sync.Mutex
	// runMu keeps a manual run from overlapping a scheduled one
	runMu sync.Mutex
}

// New creates a new scheduler
func New(cfg config.SchedulerConfig, daysBack int, accounts Accounts, processor Processor) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		config:    cfg,
		daysBack:  daysBack,
		accounts:  accounts,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrAlreadyRunning
	}
	if s.config.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	schedule := fmt.Sprintf("@every %dm", s.config.IntervalMinutes)
	ctx := s.ctx
	entryID, err := s.cron.AddFunc(schedule, func() { s.runScheduled(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.cron.Remove(s.entryID)
	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time the last run started, scheduled or manual
func (s *Scheduler) GetLastRun() time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastRun
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
