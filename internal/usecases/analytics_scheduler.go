package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leadbridge/internal/repository"
)

type AnalyticsOptions struct {
	Enabled      bool
	Hour         int
	Minute       int
	Location     *time.Location
	SystemPrompt string
}

// AnalyticsScheduler sends a summary of yesterday's audit partition once a
// day. It only reads the audit log and never touches conversation state.
type AnalyticsScheduler struct {
	audit      *repository.AuditLog
	mediator   *ReplyMediator
	dispatcher *Dispatcher
	opts       AnalyticsOptions
	now        func() time.Time
	logger     *slog.Logger
}

func NewAnalyticsScheduler(audit *repository.AuditLog, mediator *ReplyMediator, dispatcher *Dispatcher, opts AnalyticsOptions, logger *slog.Logger) *AnalyticsScheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &AnalyticsScheduler{
		audit:      audit,
		mediator:   mediator,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
		logger:     logger.With("component", "analytics"),
	}
}

func (s *AnalyticsScheduler) Enabled() bool {
	return s.opts.Enabled && s.dispatcher.AnalyticsConfigured()
}

// NextRun is the first scheduled time strictly after now.
func (s *AnalyticsScheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.opts.Location)
	y, m, d := local.Date()
	next := time.Date(y, m, d, s.opts.Hour, s.opts.Minute, 0, 0, s.opts.Location)
	if !next.After(local) {
		next = time.Date(y, m, d+1, s.opts.Hour, s.opts.Minute, 0, 0, s.opts.Location)
	}
	return next
}

// Run blocks until ctx is cancelled, firing RunOnce at each scheduled time.
func (s *AnalyticsScheduler) Run(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("daily analytics disabled")
		return
	}

	for {
		next := s.NextRun(s.now())
		s.logger.Info("next analytics run scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(ctx, s.now())
		}
	}
}

// ReportDate is the calendar day before now in the configured zone.
func (s *AnalyticsScheduler) ReportDate(now time.Time) string {
	y, m, d := now.In(s.opts.Location).Date()
	return time.Date(y, m, d-1, 12, 0, 0, 0, s.opts.Location).Format("2006-01-02")
}

// RunOnce reports on the day before now. It returns false when there was
// nothing to report or the report could not be delivered.
func (s *AnalyticsScheduler) RunOnce(ctx context.Context, now time.Time) bool {
	date := s.ReportDate(now)
	data, ok, err := s.audit.ReadPartition(date)
	if err != nil {
		s.logger.Error("reading audit partition failed", "date", date, "error", err)
		return false
	}
	if !ok {
		s.logger.Info("no conversation log, report skipped", "date", date)
		return false
	}

	summary, ok := s.mediator.Summarize(ctx, s.opts.SystemPrompt, buildAnalyticsPrompt(date, string(data)))
	if !ok {
		summary = AnalyticsFallbackText
	}

	text := fmt.Sprintf("Daily statistics for %s:\n%s", date, truncateRunes(summary, maxSummaryLength))
	caption := fmt.Sprintf("Raw conversation log for %s", date)
	delivered := s.dispatcher.SendAnalytics(ctx, text, s.audit.PartitionPath(date), caption)
	s.logger.Info("analytics report finished", "date", date, "summarized", ok, "delivered", delivered)
	return delivered
}

func buildAnalyticsPrompt(date, log string) string {
	return fmt.Sprintf("Analyse the customer conversations for %s.\n"+
		"Report: the total number of dialogues, how many reached an application, repeat contacts, "+
		"the top requests, problems and ideas for improvement. Give the result as a list.\n\n"+
		"Log (JSONL):\n%s", date, log)
}
