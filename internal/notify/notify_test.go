package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/antigravity/feed-gateway/internal/metrics"
	"github.com/antigravity/feed-gateway/internal/models"
	"github.com/antigravity/feed-gateway/internal/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeSender) Channel() string { return "fake" }

func (f *fakeSender) Send(ctx context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeSender) sent() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []*models.NotificationLog
}

func (f *fakeRecorder) Record(ctx context.Context, entry *models.NotificationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fixedLocator string

func (l fixedLocator) Country(string) string { return string(l) }
func (l fixedLocator) Close() error         { return nil }

func newTestDispatcher(sender Sender, recorder DeliveryRecorder, queueSize int) (*Dispatcher, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	cfg := config.NotifyConfig{QueueSize: queueSize, Workers: 2, SendTimeout: time.Second}
	return NewDispatcher(cfg, sender, fixedLocator("NL"), recorder, m, zap.NewNop()), m
}

func TestDispatcher_DeliversAndRecords(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	d, m := newTestDispatcher(sender, recorder, 8)
	d.Start()

	assert.True(t, d.Enqueue(Event{Reason: "IP not in whitelist: 203.0.113.6", IP: "203.0.113.6"}))
	require.NoError(t, d.Close(context.Background()))

	events := sender.sent()
	require.Len(t, events, 1)
	assert.Equal(t, "NL", events[0].Country)

	require.Len(t, recorder.entries, 1)
	assert.True(t, recorder.entries[0].Success)
	assert.Equal(t, "fake", recorder.entries[0].Channel)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues(resultSent)))
}

func TestDispatcher_RecordsFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("channel unreachable")}
	recorder := &fakeRecorder{}
	d, m := newTestDispatcher(sender, recorder, 8)
	d.Start()

	d.Enqueue(Event{Reason: "no IP whitelist configured"})
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, recorder.entries, 1)
	assert.False(t, recorder.entries[0].Success)
	assert.Equal(t, "channel unreachable", recorder.entries[0].Error)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues(resultFailed)))
}

func TestDispatcher_SkipsWhenNotConfigured(t *testing.T) {
	sender := &fakeSender{err: ErrNotConfigured}
	recorder := &fakeRecorder{}
	d, m := newTestDispatcher(sender, recorder, 8)
	d.Start()

	d.Enqueue(Event{Reason: "no domain whitelist configured"})
	require.NoError(t, d.Close(context.Background()))

	assert.Empty(t, recorder.entries)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues(resultSkipped)))
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d, m := newTestDispatcher(&fakeSender{}, nil, 1)

	// workers not started, so the second event cannot fit
	assert.True(t, d.Enqueue(Event{Reason: "first"}))
	assert.False(t, d.Enqueue(Event{Reason: "second"}))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues(resultDropped)))
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d, _ := newTestDispatcher(&fakeSender{}, nil, 4)
	d.Start()
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Enqueue(Event{Reason: "late"}))
}

func TestTelegramSender_NotConfigured(t *testing.T) {
	s := NewTelegramSender("http://127.0.0.1:1", settings.NewStatic(settings.Snapshot{}))
	assert.ErrorIs(t, s.Send(context.Background(), Event{}), ErrNotConfigured)
}

func TestTelegramSender_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botbot-token/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "-100200", r.PostForm.Get("chat_id"))
		assert.Equal(t, "HTML", r.PostForm.Get("parse_mode"))
		assert.Contains(t, r.PostForm.Get("text"), "203.0.113.6")
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
	}))
	defer srv.Close()

	provider := settings.NewStatic(settings.Snapshot{TelegramBotToken: "bot-token", TelegramChatID: "-100200"})
	s := NewTelegramSender(srv.URL+"/", provider)
	err := s.Send(context.Background(), Event{Reason: "IP not in whitelist", IP: "203.0.113.6", Time: time.Now()})
	assert.NoError(t, err)
}

func TestTelegramSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	provider := settings.NewStatic(settings.Snapshot{TelegramBotToken: "bad", TelegramChatID: "1"})
	err := NewTelegramSender(srv.URL, provider).Send(context.Background(), Event{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(Event{
		Reason:       "Domain not in whitelist: <evil>.com",
		KeyName:      "prod",
		OwnerName:    "Alice",
		OwnerContact: "@alice",
		IP:           "198.51.100.1",
		Time:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, msg, "&lt;evil&gt;.com")
	assert.Contains(t, msg, "<b>Owner:</b> Alice")
	assert.Contains(t, msg, "<b>Domain:</b> -")
	assert.Contains(t, msg, "2024-05-01 12:00:00 UTC")
	assert.NotContains(t, msg, "Country")
}
