package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// browser drives a fresh headless Chrome for every call. Nothing is kept
// between calls.
type browser struct {
	userAgent  string
	chromePath string
	wait       time.Duration
}

func (b *browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(b.userAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if strings.TrimSpace(b.chromePath) != "" {
		opts = append(opts, chromedp.ExecPath(b.chromePath))
	}
	return opts
}

func (b *browser) run(ctx context.Context, actions ...chromedp.Action) error {
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer cancelAlloc()
	bctx, cancel := chromedp.NewContext(actx)
	defer cancel()
	return chromedp.Run(bctx, actions...)
}

// waitForText blocks until the page body contains text, bounded by b.wait.
func (b *browser) waitForText(text string) chromedp.Action {
	if text == "" {
		return chromedp.WaitReady("body", chromedp.ByQuery)
	}
	expr := fmt.Sprintf("document.body !== null && document.body.innerText.includes(%s)", strconv.Quote(text))
	var found bool
	return chromedp.Poll(expr, &found, chromedp.WithPollingTimeout(b.wait))
}

// Load renders url and returns the page HTML once mustContain is visible.
func (b *browser) Load(ctx context.Context, url, mustContain string) (string, error) {
	var out string
	err := b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		b.waitForText(mustContain),
		chromedp.OuterHTML("html", &out, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return out, nil
}

// Screenshot renders url and captures the full page as PNG.
func (b *browser) Screenshot(ctx context.Context, url, mustContain string) ([]byte, error) {
	var buf []byte
	err := b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		b.waitForText(mustContain),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", url, err)
	}
	if len(buf) == 0 {
		return nil, errors.New("screenshot is empty")
	}
	return buf, nil
}
