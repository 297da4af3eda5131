package telegram

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "correctionwatch/internal/transport"
	logx "correctionwatch/pkg/logx"
)

type Config struct {
	Token string
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL string
	// HTTPTimeout bounds a single Bot API request. Photo uploads are the
	// slowest call, so this should cover them.
	HTTPTimeout time.Duration
}

// Adapter is a send-only Telegram client. It never polls for updates.
type Adapter struct {
	cfg       Config
	log       logx.Logger
	timeout   time.Duration
	transport http.RoundTripper
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:       cfg,
		log:       log,
		timeout:   timeout,
		transport: http.DefaultTransport.(*http.Transport).Clone(),
	}, nil
}

// bot builds a client whose requests all go through tr. telebot does not
// take a context per call, so each call gets its own offline client.
func (a *Adapter) bot(tr *callTransport) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{
		URL:     a.cfg.URL,
		Token:   a.cfg.Token,
		Offline: true,
		Updates: 1,
		Client:  &http.Client{Timeout: a.timeout, Transport: tr},
	})
}

// callTransport binds every request to ctx and records how far the
// exchange got.
type callTransport struct {
	ctx  context.Context
	base http.RoundTripper

	wrote atomic.Bool
	reply atomic.Bool
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				t.wrote.Store(true)
			}
		},
		GotFirstResponseByte: func() { t.reply.Store(true) },
	}
	return t.base.RoundTrip(req.WithContext(httptrace.WithClientTrace(t.ctx, trace)))
}

// inDoubt reports a request that was sent but never answered.
func (t *callTransport) inDoubt() bool { return t.wrote.Load() && !t.reply.Load() }

const (
	telegramTextLimit    = 4000
	telegramCaptionLimit = 1024
)

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		// Don't split inside a tag for HTML parse mode.
		if strings.EqualFold(parseMode, tele.ModeHTML) && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// truncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}

// SplitText returns the parts SendText would send for text.
func (a *Adapter) SplitText(text string, opt *kit.SendOptions) []string {
	mode := ""
	if opt != nil {
		mode = opt.ParseMode
	}
	return splitTelegramText(text, telegramTextLimit, mode)
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		msg, err := a.send(ctx, chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photo []byte, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if len(photo) == 0 {
		return kit.MessageRef{}, kit.Permanent(errors.New("telegram: empty photo"))
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	p := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(photo)),
		Caption: truncateRunes(caption, telegramCaptionLimit),
	}
	msg, err := a.send(ctx, &tele.Chat{ID: to.ChatID}, p, &tele.SendOptions{
		ParseMode: opt.ParseMode,
		ThreadID:  to.ThreadID,
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// send performs one Bot API call bound to ctx. A call that was written but
// not answered comes back as kit.Unconfirmed so callers do not resend it.
func (a *Adapter) send(ctx context.Context, to tele.Recipient, what any, opt *tele.SendOptions) (*tele.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr := &callTransport{ctx: ctx, base: a.transport}
	b, err := a.bot(tr)
	if err != nil {
		return nil, err
	}
	msg, err := b.Send(to, what, opt)
	if err != nil {
		if tr.inDoubt() {
			a.log.Warn("telegram request sent but not answered", logx.Err(err))
			return nil, kit.Unconfirmed(err)
		}
		return nil, classify(err)
	}
	if msg == nil {
		msg = &tele.Message{}
	}
	return msg, nil
}

// classify marks Bot API rejections that no retry can fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return kit.Permanent(err)
	}
	return err
}
