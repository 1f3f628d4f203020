package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/oauth"
	"mail-txn-ingest-go/internal/service"
)

// RunSummary aggregates one pass over every connected mailbox
type RunSummary struct {
	Accounts            int `json:"accounts"`
	Succeeded           int `json:"succeeded"`
	Failed              int `json:"failed"`
	NeedReauthorization int `json:"need_reauthorization"`
	TransactionsCreated int `json:"transactions_created"`
}

// RunOnce processes every connected mailbox once (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context) RunSummary {
	logrus.Info("Running mailbox processing once")
	return s.run(ctx)
}

// runScheduled is the cron job. ctx is cancelled by Stop.
func (s *Scheduler) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		logrus.Info("Scheduler not running, skipping processing cycle")
		return
	}
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) RunSummary {
	s.wg.Add(1)
	defer s.wg.Done()
	s.runMu.Lock()
	defer s.runMu.Unlock()

	startTime := time.Now()
	s.lastMu.Lock()
	s.lastRun = startTime
	s.lastMu.Unlock()

	var summary RunSummary
	accounts, err := s.accounts.ConnectedAccounts(ctx)
	if err != nil {
		logrus.Errorf("Failed to list connected accounts: %v", err)
		return summary
	}
	summary.Accounts = len(accounts)
	logrus.Infof("Starting processing cycle over %d mailboxes", len(accounts))

	for _, account := range accounts {
		if ctx.Err() != nil {
			logrus.Warn("Processing cycle cancelled")
			break
		}
		fields := logrus.Fields{"user_id": account.UserID, "provider": account.Provider}

		token, err := s.accounts.ValidAccessToken(ctx, account.UserID, account.Provider)
		if err != nil {
			summary.Failed++
			if oauth.IsCredentialError(err) {
				summary.NeedReauthorization++
				logrus.WithFields(fields).Warnf("Mailbox needs to be reconnected by the user: %v", err)
			} else {
				logrus.WithFields(fields).Errorf("Failed to get access token: %v", err)
			}
			continue
		}

		result, err := s.processor.ProcessEmails(ctx, account.UserID, account.Provider, token, s.daysBack)
		if err != nil {
			summary.Failed++
			if service.IsFetchError(err) {
				logrus.WithFields(fields).Warnf("Provider fetch failed, will retry next cycle: %v", err)
			} else {
				logrus.WithFields(fields).Errorf("Failed to process mailbox: %v", err)
			}
			continue
		}
		summary.Succeeded++
		summary.TransactionsCreated += result.TransactionsCreated
	}

	logrus.Infof("Processing cycle completed in %v: %d succeeded, %d failed", time.Since(startTime), summary.Succeeded, summary.Failed)
	return summary
}
