package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbridge/internal/interfaces"
)

type sentRequest struct {
	Method string
	Form   map[string]string
}

// fakeBotServer answers the handful of Bot API methods the client uses.
type fakeBotServer struct {
	mu       sync.Mutex
	requests []sentRequest
	updates  atomic.Bool
	fail     bool
}

func (f *fakeBotServer) handler(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
	} else {
		_ = r.ParseForm()
	}
	form := map[string]string{}
	for k, v := range r.Form {
		form[k] = v[0]
	}
	if r.MultipartForm != nil {
		for k := range r.MultipartForm.File {
			form[k] = "<file>"
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, sentRequest{Method: method, Form: form})
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Lead","username":"leadbot"}}`)
	case "deleteWebhook":
		io.WriteString(w, `{"ok":true,"result":true}`)
	case "getUpdates":
		if f.updates.CompareAndSwap(false, true) {
			io.WriteString(w, `{"ok":true,"result":[{"update_id":10,"message":{"message_id":5,"date":0,`+
				`"chat":{"id":7,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"Ann"},"text":"hi"}}]}`)
			return
		}
		time.Sleep(20 * time.Millisecond)
		io.WriteString(w, `{"ok":true,"result":[]}`)
	default:
		if fail {
			io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		io.WriteString(w, `{"ok":true,"result":{"message_id":99,"date":0,"chat":{"id":7,"type":"private"}}}`)
	}
}

func (f *fakeBotServer) sent(method string) []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentRequest
	for _, r := range f.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func newFakeBot(t *testing.T) (*tgbotapi.BotAPI, *fakeBotServer) {
	t.Helper()
	fake := &fakeBotServer{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint("test-token", srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	return bot, fake
}

func TestTelegramClient_SendText(t *testing.T) {
	bot, fake := newFakeBot(t)
	client := NewTelegramClient(bot).WithTimeout(time.Second)

	err := client.SendText(context.Background(), "-100123", "hello", interfaces.SendOptions{Silent: true, DisableWebPagePreview: true})
	require.NoError(t, err)

	sent := fake.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "-100123", sent[0].Form["chat_id"])
	assert.Equal(t, "hello", sent[0].Form["text"])
	assert.Equal(t, "true", sent[0].Form["disable_notification"])
	assert.Equal(t, "true", sent[0].Form["disable_web_page_preview"])
}

func TestTelegramClient_SendTextToChannelUsername(t *testing.T) {
	bot, fake := newFakeBot(t)
	client := NewTelegramClient(bot)

	require.NoError(t, client.SendText(context.Background(), "@leads", "hello", interfaces.SendOptions{}))

	sent := fake.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "@leads", sent[0].Form["chat_id"])
}

func TestTelegramClient_SendTextError(t *testing.T) {
	bot, fake := newFakeBot(t)
	fake.fail = true
	client := NewTelegramClient(bot)

	err := client.SendText(context.Background(), "1", "hello", interfaces.SendOptions{})
	assert.ErrorContains(t, err, "chat not found")
}

func TestTelegramClient_SendDocument(t *testing.T) {
	bot, fake := newFakeBot(t)
	client := NewTelegramClient(bot)

	path := filepath.Join(t.TempDir(), "2024-05-01.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	require.NoError(t, client.SendDocument(context.Background(), "-5", path, "Conversation log for 2024-05-01"))

	sent := fake.sent("sendDocument")
	require.Len(t, sent, 1)
	assert.Equal(t, "-5", sent[0].Form["chat_id"])
	assert.Equal(t, "Conversation log for 2024-05-01", sent[0].Form["caption"])
	assert.Equal(t, "<file>", sent[0].Form["document"])
}

func TestTelegramClient_CancelledContext(t *testing.T) {
	bot, fake := newFakeBot(t)
	client := NewTelegramClient(bot)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, client.SendText(ctx, "1", "hello", interfaces.SendOptions{}), context.Canceled)
	assert.Empty(t, fake.sent("sendMessage"))
}

func TestTelegramPoller_DispatchesUpdates(t *testing.T) {
	bot, fake := newFakeBot(t)

	got := make(chan tgbotapi.Update, 1)
	poller := NewTelegramPoller(bot, func(_ context.Context, u tgbotapi.Update) {
		got <- u
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	select {
	case u := <-got:
		require.NotNil(t, u.Message)
		assert.Equal(t, "hi", u.Message.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("update not dispatched")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	dropped := fake.sent("deleteWebhook")
	require.Len(t, dropped, 1)
	assert.Equal(t, "true", dropped[0].Form["drop_pending_updates"])
}
