package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbridge/internal/entities"
)

func TestDispatcher_TruncatesOversizedText(t *testing.T) {
	operator := &fakeMessenger{}
	d := NewDispatcher(operator, operator, Destinations{Notify: "n", Log: "l"}, discardLogger())

	long := strings.Repeat("я", 5000)
	require.True(t, d.ForwardToOperator(context.Background(), long))
	require.True(t, d.LogPreview(context.Background(), long))

	require.Len(t, operator.sent, 2)
	for _, s := range operator.sent {
		assert.Equal(t, maxMessageLength, utf8.RuneCountInString(s.Text))
	}
	assert.True(t, operator.sent[0].Opts.DisableWebPagePreview)
	assert.True(t, operator.sent[1].Opts.Silent)
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	operator := &fakeMessenger{err: errors.New("telegram down")}
	customer := &fakeMessenger{}
	d := NewDispatcher(operator, operator, Destinations{Notify: "n"}, discardLogger()).
		WithCustomerChannel(entities.ChannelWhatsApp, customer)

	assert.False(t, d.ForwardToOperator(context.Background(), "hi"))
	assert.True(t, d.ReplyToCustomer(context.Background(), entities.ChannelWhatsApp, "1555", " reply "))
	require.Len(t, customer.sent, 1)
	assert.Equal(t, "reply", customer.sent[0].Text)
}

func TestDispatcher_UnconfiguredDestinations(t *testing.T) {
	operator := &fakeMessenger{}
	d := NewDispatcher(operator, operator, Destinations{}, discardLogger())

	ctx := context.Background()
	assert.False(t, d.ForwardToOperator(ctx, "x"))
	assert.False(t, d.SendApplication(ctx, "x"))
	assert.False(t, d.LogPreview(ctx, "x"))
	assert.False(t, d.SendAnalytics(ctx, "x", "/tmp/none", "c"))
	assert.False(t, d.ReplyToCustomer(ctx, entities.ChannelTelegram, "1", "x"))
	assert.False(t, d.AnalyticsConfigured())
	assert.Empty(t, operator.sent)
}

func TestDispatcher_SendAnalytics(t *testing.T) {
	operator := &fakeMessenger{}
	d := NewDispatcher(operator, operator, Destinations{Analytics: "a"}, discardLogger())

	assert.True(t, d.SendAnalytics(context.Background(), "summary", "/logs/2024-05-01.jsonl", "caption"))
	require.Len(t, operator.sent, 1)
	assert.Equal(t, "a", operator.sent[0].To)
	assert.Equal(t, []sentDocument{{To: "a", Path: "/logs/2024-05-01.jsonl", Caption: "caption"}}, operator.documents())
}

func TestDispatcher_EmptyReplyNotSent(t *testing.T) {
	customer := &fakeMessenger{}
	d := NewDispatcher(nil, nil, Destinations{}, discardLogger()).
		WithCustomerChannel(entities.ChannelTelegram, customer)

	assert.False(t, d.ReplyToCustomer(context.Background(), entities.ChannelTelegram, "1", "   "))
	assert.Empty(t, customer.sent)
}
