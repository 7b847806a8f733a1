package usecases

import (
	"context"
	"log/slog"
	"strings"

	"leadbridge/internal/entities"
	"leadbridge/internal/interfaces"
)

// Destinations are the operator-side chat ids. Empty means "not configured".
type Destinations struct {
	Notify       string
	Applications string
	Log          string
	Analytics    string
}

// Dispatcher delivers rendered text to the operator, the customer and the
// log chats. Every send is attempted once and reported as a bool.
type Dispatcher struct {
	operator  interfaces.Messenger
	documents interfaces.DocumentSender
	customers map[entities.Channel]interfaces.Messenger
	dest      Destinations
	logger    *slog.Logger
}

func NewDispatcher(operator interfaces.Messenger, documents interfaces.DocumentSender, dest Destinations, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		operator:  operator,
		documents: documents,
		customers: make(map[entities.Channel]interfaces.Messenger),
		dest:      dest,
		logger:    logger.With("component", "dispatcher"),
	}
}

// WithCustomerChannel registers the send primitive used for replies on channel.
func (d *Dispatcher) WithCustomerChannel(channel entities.Channel, m interfaces.Messenger) *Dispatcher {
	if m != nil {
		d.customers[channel] = m
	}
	return d
}

func (d *Dispatcher) ForwardToOperator(ctx context.Context, text string) bool {
	return d.sendOperator(ctx, "notify", d.dest.Notify, text, interfaces.SendOptions{DisableWebPagePreview: true})
}

func (d *Dispatcher) SendApplication(ctx context.Context, text string) bool {
	return d.sendOperator(ctx, "applications", d.dest.Applications, text, interfaces.SendOptions{})
}

func (d *Dispatcher) LogPreview(ctx context.Context, text string) bool {
	return d.sendOperator(ctx, "log", d.dest.Log, text, interfaces.SendOptions{Silent: true})
}

// ReplyToCustomer sends text back on the channel the customer wrote from.
func (d *Dispatcher) ReplyToCustomer(ctx context.Context, channel entities.Channel, to, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || to == "" {
		return false
	}
	m, ok := d.customers[channel]
	if !ok {
		d.logger.Warn("no reply channel configured", "channel", channel)
		return false
	}
	if err := m.SendText(ctx, to, truncateRunes(text, maxMessageLength), interfaces.SendOptions{}); err != nil {
		d.logger.Error("customer reply failed", "channel", channel, "to", to, "error", err)
		return false
	}
	return true
}

// SendAnalytics posts the summary and then the raw log file. The file is
// attempted even if the summary could not be delivered.
func (d *Dispatcher) SendAnalytics(ctx context.Context, summary, path, caption string) bool {
	if d.dest.Analytics == "" {
		return false
	}
	ok := d.sendOperator(ctx, "analytics", d.dest.Analytics, summary, interfaces.SendOptions{})
	if d.documents == nil {
		return false
	}
	if err := d.documents.SendDocument(ctx, d.dest.Analytics, path, caption); err != nil {
		d.logger.Error("analytics document failed", "to", d.dest.Analytics, "error", err)
		return false
	}
	return ok
}

func (d *Dispatcher) AnalyticsConfigured() bool {
	return d.dest.Analytics != ""
}

func (d *Dispatcher) sendOperator(ctx context.Context, dest, to, text string, opts interfaces.SendOptions) bool {
	if to == "" {
		d.logger.Debug("destination not configured, message skipped", "destination", dest)
		return false
	}
	if d.operator == nil {
		return false
	}
	if err := d.operator.SendText(ctx, to, truncateRunes(text, maxMessageLength), opts); err != nil {
		d.logger.Error("operator send failed", "destination", dest, "to", to, "error", err)
		return false
	}
	return true
}
