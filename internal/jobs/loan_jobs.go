package jobs

import (
	"context"
	"errors"
	"fmt"

	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository"
)

// ReminderStats summarizes one overdue reminder run.
type ReminderStats struct {
	Overdue int
	Sent    int
	Skipped int
	Failed  int
}

// SendOverdueReminders emails every member holding an OPEN loan past its due time
func (jr *JobRunner) SendOverdueReminders() {
	jr.runWithRecovery("SendOverdueReminders", func() {
		stats, err := jr.SendOverdueRemindersContext(context.Background())
		if err != nil {
			logger.Error("Failed to send overdue reminders", "error", err)
			return
		}
		logger.Info("Overdue reminders processed",
			"overdue", stats.Overdue,
			"sent", stats.Sent,
			"skipped", stats.Skipped,
			"failed", stats.Failed)
	})
}

// SendOverdueRemindersContext does the work of SendOverdueReminders. A failed
// email or member lookup is counted and does not stop the run.
func (jr *JobRunner) SendOverdueRemindersContext(ctx context.Context) (ReminderStats, error) {
	var stats ReminderStats

	asOf := jr.services.Clock.Now()
	loans, err := jr.services.Loans.ListOverdue(ctx, asOf)
	if err != nil {
		return stats, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	stats.Overdue = len(loans)

	for i := range loans {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		loan := &loans[i]

		member, err := jr.services.Members.GetByID(ctx, loan.MemberID)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("Skipping reminder for missing member", "loan_id", loan.ID, "member_id", loan.MemberID)
			stats.Skipped++
			continue
		}
		if err != nil {
			logger.Error("Failed to load member for reminder", "loan_id", loan.ID, "error", err)
			stats.Failed++
			continue
		}
		if member.Email == "" {
			stats.Skipped++
			continue
		}

		if err := jr.services.Email.SendOverdueLoanReminder(ctx, member, loan); err != nil {
			logger.Error("Failed to send overdue reminder", "loan_id", loan.ID, "member_id", member.ID, "error", err)
			stats.Failed++
			continue
		}
		logger.Debug("Sent overdue reminder", "loan_id", loan.ID, "member_id", member.ID, "due_at", loan.DueAt)
		stats.Sent++
	}

	return stats, nil
}
