package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbridge/internal/interfaces"
)

func TestWhatsAppBusinessClient_SendText(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	client := NewWhatsAppBusinessClient(srv.URL+"/", "wa-token", "12345", time.Second)
	require.NoError(t, client.SendText(context.Background(), "15550001", "Hello", interfaces.SendOptions{}))

	assert.Equal(t, "/12345/messages", gotPath)
	assert.Equal(t, "Bearer wa-token", gotAuth)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "15550001", gotBody["to"])
	assert.Equal(t, "text", gotBody["type"])
	assert.Equal(t, map[string]interface{}{"preview_url": false, "body": "Hello"}, gotBody["text"])
}

func TestWhatsAppBusinessClient_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid token"}}`))
	}))
	defer srv.Close()

	client := NewWhatsAppBusinessClient(srv.URL, "bad", "12345", time.Second)
	err := client.SendText(context.Background(), "15550001", "Hello", interfaces.SendOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestWhatsAppBusinessClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewWhatsAppBusinessClient(srv.URL, "t", "12345", 20*time.Millisecond)
	assert.Error(t, client.SendText(context.Background(), "1", "Hello", interfaces.SendOptions{}))
}
