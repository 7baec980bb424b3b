package worker

import (
	"context"
	"fmt"

	"finboard/internal/amqp"
	"finboard/internal/log"
	"finboard/internal/ports"
)

// SyncWorker applies expense events to an external mirror.
type SyncWorker struct {
	mirror ports.ExpenseMirror
	logger *log.Logger
}

func NewSyncWorker(mirror ports.ExpenseMirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent upserts the record for created and updated events and removes
// it for deleted ones. A returned error makes the consumer requeue the event.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	w.logger.InfoContext(ctx, "Processing expense event",
		log.FieldEventType, ev.Type,
		log.FieldExpenseID, ev.ID)

	switch ev.Type {
	case amqp.EventCreated, amqp.EventUpdated:
		e, err := ev.Expense()
		if err != nil {
			// Redelivery cannot fix a bad payload.
			w.logger.ErrorContext(ctx, "Dropping event with unreadable record",
				log.FieldExpenseID, ev.ID,
				log.FieldError, err)
			return nil
		}
		if err := w.mirror.UpsertExpense(ctx, e); err != nil {
			return fmt.Errorf("mirror expense %s: %w", ev.ID, err)
		}
	case amqp.EventDeleted:
		if err := w.mirror.RemoveExpense(ctx, ev.ID); err != nil {
			return fmt.Errorf("remove mirrored expense %s: %w", ev.ID, err)
		}
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	w.logger.InfoContext(ctx, "Successfully mirrored expense event",
		log.FieldEventType, ev.Type,
		log.FieldExpenseID, ev.ID)
	return nil
}
