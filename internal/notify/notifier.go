// Package notify forwards selected protocol events to operator chat
// channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/overtimeamm/internal/config"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier is an event sink that renders events into alerts for every
// sender. Only event types in the allowed set are forwarded; an empty set
// forwards everything.
type Notifier struct {
	senders []Sender
	allowed map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// FromConfig builds the senders whose credentials are set. It returns nil
// when no channel is configured.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	var senders []Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return NewNotifier(senders, cfg.Events, logger)
}

// Wants reports whether events of type t are forwarded.
func (n *Notifier) Wants(t domain.EventType) bool {
	return len(n.allowed) == 0 || n.allowed[t]
}

// Publish implements domain.EventSink.
func (n *Notifier) Publish(ctx context.Context, evt domain.Event) error {
	if !n.Wants(evt.Type) {
		return nil
	}
	title, message := Render(evt)
	return n.Send(ctx, title, message)
}

// Send delivers to every sender. A failing sender does not stop delivery to
// the rest.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: send failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Render formats an event as a title and one "key: value" line per payload
// field, sorted by key.
func Render(evt domain.Event) (string, string) {
	title := strings.ReplaceAll(string(evt.Type), "_", " ")
	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %v", k, evt.Payload[k])
	}
	return title, b.String()
}

var _ domain.EventSink = (*Notifier)(nil)
