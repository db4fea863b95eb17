package service

import (
	"context"
	"fmt"
	"strings"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

func (s *Service) CreateReminder(ctx context.Context, req domain.ReminderCreateRequest) (domain.DebtReminder, error) {
	actor, err := s.requireWriter(ctx)
	if err != nil {
		return domain.DebtReminder{}, err
	}

	req.DebtID = strings.TrimSpace(req.DebtID)
	req.Message = strings.TrimSpace(req.Message)
	if req.DebtID == "" {
		return domain.DebtReminder{}, domain.Invalid("debt_id", "debt_id is required")
	}
	if !domain.IsValidReminderType(req.ReminderType) {
		return domain.DebtReminder{}, domain.Invalid("reminder_type", "unknown reminder type %q", req.ReminderType)
	}
	if req.Message == "" {
		return domain.DebtReminder{}, domain.Invalid("message", "message is required")
	}
	if req.ScheduledDate.IsZero() {
		return domain.DebtReminder{}, domain.Invalid("scheduled_date", "scheduled_date is required")
	}

	var reminder domain.DebtReminder
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		debt, err := tx.LockDebt(ctx, req.DebtID)
		if err != nil {
			return err
		}

		reminder = domain.DebtReminder{
			ID:            xid.New("rem"),
			DebtID:        debt.ID,
			CustomerID:    debt.CustomerID,
			ReminderType:  req.ReminderType,
			ScheduledDate: req.ScheduledDate.UTC(),
			Status:        domain.ReminderScheduled,
			Message:       req.Message,
			Notes:         strings.TrimSpace(req.Notes),
			CreatedBy:     actor.Username,
			CreatedAt:     s.clock(),
		}
		return tx.InsertDebtReminder(ctx, reminder)
	})
	if err != nil {
		return domain.DebtReminder{}, err
	}

	s.logAudit(ctx, "reminder_create", "debt_reminder", reminder.ID, fmt.Sprintf("debt=%s,type=%s", reminder.DebtID, reminder.ReminderType))
	return reminder, nil
}

func (s *Service) GetReminder(ctx context.Context, id string) (domain.DebtReminder, error) {
	reminder, err := s.repo.GetDebtReminder(ctx, id)
	if err != nil {
		return domain.DebtReminder{}, err
	}
	return *reminder, nil
}

func (s *Service) ListReminders(ctx context.Context, filter domain.ReminderFilter) ([]domain.DebtReminder, error) {
	return s.repo.ListDebtReminders(ctx, filter)
}

// PendingReminders lists scheduled reminders that are due now.
func (s *Service) PendingReminders(ctx context.Context) ([]domain.DebtReminder, error) {
	now := s.clock()
	return s.repo.ListDebtReminders(ctx, domain.ReminderFilter{
		Status:      domain.ReminderScheduled,
		ScheduledBy: &now,
	})
}

// MarkReminderSent records delivery of a scheduled reminder.
func (s *Service) MarkReminderSent(ctx context.Context, id string) (domain.DebtReminder, error) {
	return s.transitionReminder(ctx, id, "reminder_mark_sent", func(reminder *domain.DebtReminder) error {
		if reminder.Status != domain.ReminderScheduled {
			return domain.Invalid("status", "only scheduled reminders can be marked as sent")
		}
		sentAt := s.clock()
		reminder.Status = domain.ReminderSent
		reminder.SentDate = &sentAt
		return nil
	})
}

func (s *Service) CancelReminder(ctx context.Context, id string) (domain.DebtReminder, error) {
	return s.transitionReminder(ctx, id, "reminder_cancel", func(reminder *domain.DebtReminder) error {
		if reminder.Status != domain.ReminderScheduled && reminder.Status != domain.ReminderFailed {
			return domain.Invalid("status", "reminder in status %s cannot be cancelled", reminder.Status)
		}
		reminder.Status = domain.ReminderCancelled
		return nil
	})
}

func (s *Service) transitionReminder(ctx context.Context, id string, action string, apply func(*domain.DebtReminder) error) (domain.DebtReminder, error) {
	if _, err := s.requireWriter(ctx); err != nil {
		return domain.DebtReminder{}, err
	}

	var updated domain.DebtReminder
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		reminder, err := tx.LockDebtReminder(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(reminder); err != nil {
			return err
		}
		if err := tx.UpdateDebtReminder(ctx, *reminder); err != nil {
			return err
		}
		updated = *reminder
		return nil
	})
	if err != nil {
		return domain.DebtReminder{}, err
	}

	s.logAudit(ctx, action, "debt_reminder", updated.ID, "status="+updated.Status)
	return updated, nil
}
