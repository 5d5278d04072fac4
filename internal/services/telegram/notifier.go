package telegram

import (
	"context"
	"time"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/rs/zerolog"
)

const sendTimeout = 10 * time.Second

// Notifier sends one message per poll cycle that produced events.
type Notifier struct {
	svc    Service
	cfg    models.TelegramConfig
	iface  string
	kinds  map[models.EventKind]bool
	logger zerolog.Logger
}

// NewNotifier creates a poll subscriber that reports presence changes on iface.
func NewNotifier(logger zerolog.Logger, svc Service, cfg models.TelegramConfig, iface string) *Notifier {
	var kinds map[models.EventKind]bool
	if len(cfg.NotifyOn) > 0 {
		kinds = make(map[models.EventKind]bool, len(cfg.NotifyOn))
		for _, k := range cfg.NotifyOn {
			kinds[k] = true
		}
	}
	return &Notifier{svc: svc, cfg: cfg, iface: iface, kinds: kinds, logger: logger}
}

// Notify sends the filtered events of update. Failures are logged only.
func (n *Notifier) Notify(ctx context.Context, update models.Update) {
	events := n.filter(update.Delta.Events())
	if len(events) == 0 {
		return
	}

	var takenAt time.Time
	if update.Snapshot != nil {
		takenAt = update.Snapshot.TakenAt
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	result, err := n.svc.SendNotification(sendCtx, n.cfg, models.TelegramMessage{
		Interface: n.iface,
		CycleID:   update.CycleID,
		TakenAt:   takenAt,
		Events:    events,
	})
	if err == nil && result != nil {
		err = result.Error
	}
	if err != nil {
		n.logger.Warn().
			Err(err).
			Str("cycle_id", update.CycleID).
			Msg("failed to send Telegram notification")
	}
}

func (n *Notifier) filter(events []models.Event) []models.Event {
	if n.kinds == nil {
		return events
	}
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if n.kinds[ev.Kind] {
			out = append(out, ev)
		}
	}
	return out
}
