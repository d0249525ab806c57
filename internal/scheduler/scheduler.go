package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/billing"
	"github.com/mamadbah2/dairy/internal/service/ledger"
)

const runTimeout = 5 * time.Minute

// MonthlyBilling is the ledger work run at the start of every month.
type MonthlyBilling interface {
	Dispatch(ctx context.Context, period billing.Period) (ledger.DispatchReport, error)
	ExportPeriod(ctx context.Context, period billing.Period) (int, error)
	ArchiveInvoices(ctx context.Context, period billing.Period) (ledger.ArchiveReport, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	loc      *time.Location
	billing  MonthlyBilling
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler that runs in the billing timezone.
func NewScheduler(schedule string, loc *time.Location, billing MonthlyBilling, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	// Standard five field cron expressions, evaluated in the billing timezone.
	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:     c,
		schedule: schedule,
		loc:      loc,
		billing:  billing,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the monthly job and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule), zap.String("timezone", s.loc.String()))

	if _, err := s.cron.AddFunc(s.schedule, s.sendMonthlyNotifications); err != nil {
		return fmt.Errorf("schedule monthly notifications: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sendMonthlyNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	s.RunMonthly(ctx)
}

// RunMonthly notifies every customer about the previous calendar month, then
// exports and archives the same period when those are configured.
func (s *Scheduler) RunMonthly(ctx context.Context) {
	period := billing.PreviousMonth(s.now(), s.loc)
	s.logger.Info("generating monthly notifications", zap.String("period", period.Label))

	report, err := s.billing.Dispatch(ctx, period)
	switch {
	case errors.Is(err, ledger.ErrDispatchDisabled):
		s.logger.Warn("notification dispatch disabled, skipping monthly run")
	case err != nil:
		s.logger.Error("monthly notifications finished with errors",
			zap.Int("sent", report.Sent),
			zap.Int("failed", len(report.Failed)),
			zap.Error(err))
	default:
		s.logger.Info("monthly notifications sent", zap.Int("sent", report.Sent), zap.Int("skipped", report.Skipped))
	}

	rows, err := s.billing.ExportPeriod(ctx, period)
	switch {
	case errors.Is(err, ledger.ErrExportDisabled):
	case err != nil:
		s.logger.Error("monthly billing export failed", zap.Error(err))
	default:
		s.logger.Info("monthly billing exported", zap.Int("rows", rows))
	}

	archived, err := s.billing.ArchiveInvoices(ctx, period)
	switch {
	case errors.Is(err, ledger.ErrArchiveDisabled):
	case err != nil:
		s.logger.Error("monthly invoice archive finished with errors",
			zap.Int("stored", len(archived.Stored)),
			zap.Int("failed", len(archived.Failed)),
			zap.Error(err))
	default:
		s.logger.Info("monthly invoices archived", zap.Int("stored", len(archived.Stored)))
	}
}
