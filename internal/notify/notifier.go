// Package notify forwards selected lifecycle events to chat channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// Event names accepted in the notify.events config list.
const (
	EventRoundSettled   = string(domain.EventRoundSettled)
	EventJackpotClaimed = string(domain.EventJackpotClaimed)
	EventOperatorError  = "operator_error"
)

// Sender delivers one formatted message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every sender. Only events in the allowed
// set pass; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil || (len(n.events) > 0 && !n.events[event]) {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyEvent formats the lifecycle events worth a message. Others are
// ignored.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventRoundSettled:
		msg := fmt.Sprintf("Round %d of %s settled", ev.Round, ev.MarketID)
		if ev.Outcome != nil {
			if b, err := json.Marshal(ev.Outcome); err == nil {
				msg += "\nOutcome: " + string(b)
			}
		}
		return n.Notify(ctx, EventRoundSettled, "Round settled", msg)
	case domain.EventJackpotClaimed:
		return n.Notify(ctx, EventJackpotClaimed, "Jackpot claimed",
			fmt.Sprintf("%s won %d from the %s jackpot (round %d)", ev.User, ev.Amount, ev.MarketID, ev.Round))
	}
	return nil
}

// OperatorError reports a failed operator job.
func (n *Notifier) OperatorError(ctx context.Context, job string, key domain.RoundKey, err error) error {
	return n.Notify(ctx, EventOperatorError, "Operator error",
		fmt.Sprintf("%s on %s: %v", job, key, err))
}

// Watch forwards events from the rounds and jackpots channels until ctx ends.
func (n *Notifier) Watch(ctx context.Context, bus domain.SignalBus) error {
	rounds, err := bus.Subscribe(ctx, domain.ChannelRounds)
	if err != nil {
		return fmt.Errorf("notify: subscribe rounds: %w", err)
	}
	jackpots, err := bus.Subscribe(ctx, domain.ChannelJackpots)
	if err != nil {
		return fmt.Errorf("notify: subscribe jackpots: %w", err)
	}
	for {
		var payload []byte
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case payload, ok = <-rounds:
		case payload, ok = <-jackpots:
		}
		if !ok {
			return nil
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		if err := n.NotifyEvent(ctx, ev); err != nil {
			n.logger.WarnContext(ctx, "notify: forward event failed",
				slog.String("type", string(ev.Type)),
				slog.Any("error", err),
			)
		}
	}
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
