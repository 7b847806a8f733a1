package usecases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"leadbridge/internal/entities"
	"leadbridge/internal/infrastructure"
	"leadbridge/internal/interfaces"
	"leadbridge/internal/repository"
)

type sentMessage struct {
	To   string
	Text string
	Opts interfaces.SendOptions
}

type sentDocument struct {
	To      string
	Path    string
	Caption string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	docs []sentDocument
	err  error
}

func (f *fakeMessenger) SendText(_ context.Context, to, text string, opts interfaces.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: text, Opts: opts})
	return nil
}

func (f *fakeMessenger) SendDocument(_ context.Context, to, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, sentDocument{To: to, Path: path, Caption: caption})
	return nil
}

func (f *fakeMessenger) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.Text)
	}
	return out
}

func (f *fakeMessenger) sentTo(to string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, s := range f.sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeMessenger) documents() []sentDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentDocument(nil), f.docs...)
}

type fakeCompletion struct {
	mu    sync.Mutex
	reply string
	err   error
	block bool
	calls [][]entities.ChatMessage
}

func (f *fakeCompletion) Complete(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	reply, err, block := f.reply, f.err, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, err
}

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCompletion) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	last := f.calls[len(f.calls)-1]
	return last[len(last)-1].Content
}

const (
	notifyChat       = "notify"
	applicationsChat = "apps"
	logChat          = "log"
	analyticsChat    = "analytics"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store      interfaces.ConversationStore
	audit      *repository.AuditLog
	auditDir   string
	operator   *fakeMessenger
	telegram   *fakeMessenger
	whatsapp   *fakeMessenger
	ai         *fakeCompletion
	mediator   *ReplyMediator
	dispatcher *Dispatcher
	machine    *StateMachine
	service    *MessageService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, aiEnabled bool) *harness {
	t.Helper()
	logger := discardLogger()

	store, err := repository.NewConversationStore(context.Background(), filepath.Join(t.TempDir(), "conversations.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	auditDir := t.TempDir()
	h := &harness{
		store:    store,
		audit:    repository.NewAuditLog(auditDir, time.UTC).WithClock(func() time.Time { return fixedNow }),
		auditDir: auditDir,
		operator: &fakeMessenger{},
		telegram: &fakeMessenger{},
		whatsapp: &fakeMessenger{},
		ai:       &fakeCompletion{reply: "AI answer"},
	}
	h.mediator = NewReplyMediator(h.ai, aiEnabled, "system prompt", time.Second, logger)
	h.dispatcher = NewDispatcher(h.operator, h.operator, Destinations{
		Notify:       notifyChat,
		Applications: applicationsChat,
		Log:          logChat,
		Analytics:    analyticsChat,
	}, logger).
		WithCustomerChannel(entities.ChannelTelegram, h.telegram).
		WithCustomerChannel(entities.ChannelWhatsApp, h.whatsapp)

	turns := NewTurnLogger(h.audit, store, h.dispatcher, logger)

	h.machine = NewStateMachine(store, infrastructure.NewSessionManager(), h.mediator, h.dispatcher, turns, logger)
	ids := 0
	h.machine.newID = func() string {
		ids++
		return fmt.Sprintf("conv-%d", ids)
	}
	h.machine.now = func() time.Time { return fixedNow }

	h.service = NewMessageService(h.machine, h.dispatcher, logger)
	return h
}

func tgUpdate(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ann", LastName: "Lee", UserName: "annlee"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

// tell feeds bot-channel texts for one user in order.
func (h *harness) tell(userID int64, texts ...string) {
	for _, text := range texts {
		h.service.HandleTelegramUpdate(context.Background(), tgUpdate(userID, text))
	}
}

func (h *harness) state(t *testing.T, channel entities.Channel, userID string) *entities.ConversationState {
	t.Helper()
	state, err := h.store.LoadState(context.Background(), channel, userID)
	require.NoError(t, err)
	return state
}

func (h *harness) auditLines(t *testing.T) []string {
	t.Helper()
	data, ok, err := h.audit.ReadPartition("2024-05-01")
	require.NoError(t, err)
	if !ok {
		return nil
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func waPayload(from, name, body string) []byte {
	return []byte(fmt.Sprintf(`{"entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":%q,"profile":{"name":%q}}],
		"messages":[{"from":%q,"id":"wamid.1","type":"text","text":{"body":%q}}]
	}}]}]}`, from, name, from, body))
}
