package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chigozzdevv/tossr/internal/cache/local"
	"github.com/chigozzdevv/tossr/internal/domain"
)

type captureSender struct {
	mu     sync.Mutex
	titles []string
	fail   bool
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	if c.fail {
		return errors.New("down")
	}
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.titles)
}

func TestNotifyFiltersEvents(t *testing.T) {
	ctx := context.Background()
	s := &captureSender{}
	n := NewNotifier([]Sender{s}, []string{EventRoundSettled, " "}, nil)

	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventRoundSettled, MarketID: "m1", Round: 2, Outcome: &domain.Outcome{}}))
	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventJackpotClaimed}))
	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventBetPlaced}))
	require.NoError(t, n.OperatorError(ctx, "lock", domain.RoundKey{MarketID: "m1", Number: 2}, errors.New("x")))

	assert.Equal(t, []string{"Round settled"}, s.titles)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &captureSender{fail: true}
	good := &captureSender{}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.Notify(context.Background(), EventOperatorError, "t", "m")
	assert.ErrorContains(t, err, "capture: down")
	assert.Equal(t, 1, good.count())
}

func TestNilNotifierIsQuiet(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventRoundSettled, "t", "m"))
}

func TestWatchForwardsBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := local.NewBus()
	s := &captureSender{}
	n := NewNotifier([]Sender{s}, nil, nil)

	done := make(chan error, 1)
	go func() { done <- n.Watch(ctx, bus) }()

	payload, err := json.Marshal(domain.Event{Type: domain.EventJackpotClaimed, MarketID: "m1", User: "alice", Amount: 5})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, domain.ChannelJackpots, payload)
		return s.count() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramSender("TOKEN", "42")
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSendStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "unexpected status 400")
}

func TestDiscordSendEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, d.Send(context.Background(), "Round settled", "Round 3 of m1 settled"))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Round settled", got.Embeds[0].Title)
	assert.Equal(t, "Round 3 of m1 settled", got.Embeds[0].Description)
	assert.Equal(t, "2026-01-02T03:04:05Z", got.Embeds[0].Timestamp)
}
