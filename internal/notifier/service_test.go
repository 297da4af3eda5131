package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correctionwatch/internal/eventbus"
	kit "correctionwatch/internal/transport"
	"correctionwatch/internal/transport/telegram"
	logx "correctionwatch/pkg/logx"
)

type fakeSender struct {
	mu     sync.Mutex
	fail   int // fail the first n calls
	err    error
	texts  []string
	photos [][]byte
	to     []kit.ChatTarget
}

func (f *fakeSender) next() error {
	if f.fail > 0 {
		f.fail--
		if f.err != nil {
			return f.err
		}
		return errors.New("temporary failure")
	}
	return nil
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return kit.MessageRef{}, err
	}
	f.texts = append(f.texts, text)
	f.to = append(f.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, to kit.ChatTarget, photo []byte, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return kit.MessageRef{}, err
	}
	f.photos = append(f.photos, photo)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.photos)}, nil
}

func testConfig() Config {
	return Config{
		RatePerSec:    100,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		Target:        kit.ChatTarget{ChatID: 42, ThreadID: 7},
		ParseMode:     "HTML",
	}
}

func TestSendTextDeliversToConfiguredTarget(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: 1}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(testConfig(), fs, logx.Nop(), bus)
	d := s.SendText(context.Background(), "<b>hello</b>")

	require.True(t, d.OK(), d.String())
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, []string{"<b>hello</b>"}, fs.texts)
	assert.Equal(t, kit.ChatTarget{ChatID: 42, ThreadID: 7}, fs.to[0])

	ev := <-events
	assert.Equal(t, eventbus.TopicNotifierSent, ev.Type)
	de, ok := ev.Data.(DeliveryEvent)
	require.True(t, ok)
	assert.Equal(t, "text", de.Kind)
	assert.Equal(t, int64(42), de.ChatID)
	assert.Equal(t, Delivered, de.Outcome)
}

func TestSendTextReportsFailureAfterRetries(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: 10}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(testConfig(), fs, logx.Nop(), bus)
	d := s.SendText(context.Background(), "hello")

	assert.Equal(t, Failed, d.Outcome)
	assert.Equal(t, 3, d.Attempts)
	assert.Empty(t, fs.texts)

	ev := <-events
	assert.Equal(t, eventbus.TopicNotifierFailed, ev.Type)
	assert.NotEmpty(t, ev.Data.(DeliveryEvent).Error)
}

func TestSendTextRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(testConfig(), fs, logx.Nop(), nil)
	d := s.SendText(context.Background(), "  ")

	assert.ErrorIs(t, d.Err, ErrEmptyMessage)
	assert.Equal(t, 0, d.Attempts)
	assert.Empty(t, fs.texts)
}

func TestSendImage(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(testConfig(), fs, logx.Nop(), nil)

	d := s.SendImage(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "proof")
	require.True(t, d.OK())
	require.Len(t, fs.photos, 1)

	d = s.SendImage(context.Background(), nil, "proof")
	assert.ErrorIs(t, d.Err, ErrEmptyMessage)
}

func TestApplyChangesRetryBudget(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: 10}
	s := New(testConfig(), fs, logx.Nop(), nil)

	cfg := testConfig()
	cfg.RetryMax = 0
	s.Apply(cfg)

	d := s.SendText(context.Background(), "hello")
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 0, s.Config().RetryMax)
}

// splittingSender sends text in fixed-size parts and fails the call for
// part failAt once.
type splittingSender struct {
	fakeSender
	size   int
	failAt int
	calls  int
}

func (f *splittingSender) SplitText(text string, _ *kit.SendOptions) []string {
	var parts []string
	for len(text) > f.size {
		parts = append(parts, text[:f.size])
		text = text[f.size:]
	}
	return append(parts, text)
}

func (f *splittingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.calls++
	fail := len(f.texts) == f.failAt
	if fail {
		f.failAt = -1
	}
	f.mu.Unlock()
	if fail {
		return kit.MessageRef{}, errors.New("temporary failure")
	}
	return f.fakeSender.SendText(ctx, to, text, opt)
}

func TestSendTextRetryResumesAtFailedPart(t *testing.T) {
	t.Parallel()

	fs := &splittingSender{size: 3, failAt: 1}
	s := New(testConfig(), fs, logx.Nop(), nil)
	d := s.SendText(context.Background(), "aaabbbccc")

	require.True(t, d.OK(), d.String())
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, fs.texts)
	assert.Equal(t, 4, fs.calls)
}

func TestSendTextDoesNotResendUnansweredRequest(t *testing.T) {
	t.Parallel()

	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	}))
	t.Cleanup(srv.Close)

	tg, err := telegram.New(telegram.Config{Token: "123:abc", URL: srv.URL, HTTPTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	cfg := testConfig()
	cfg.TextTimeout = 50 * time.Millisecond
	s := New(cfg, tg, logx.Nop(), bus)
	d := s.SendText(context.Background(), "hello")

	assert.Equal(t, Unconfirmed, d.Outcome)
	assert.Equal(t, 1, d.Attempts)
	assert.True(t, kit.IsUnconfirmed(d.Err))
	assert.True(t, strings.HasPrefix(d.String(), "unconfirmed"))

	ev := <-events
	assert.Equal(t, eventbus.TopicNotifierFailed, ev.Type)
	assert.Equal(t, Unconfirmed, ev.Data.(DeliveryEvent).Outcome)

	// Give any stray retry time to arrive before counting.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}
