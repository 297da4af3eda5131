package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"correctionwatch/internal/monitor"
	logx "correctionwatch/pkg/logx"
)

var ErrProofUnsupported = errors.New("proof capture needs browser mode")

// maxPageBytes caps how much of a page is read in http mode.
const maxPageBytes = 8 << 20

type loader interface {
	Load(ctx context.Context, url, mustContain string) (string, error)
}

type screenshotter interface {
	Screenshot(ctx context.Context, url, mustContain string) ([]byte, error)
}

// Fetcher implements monitor.Fetcher against the result site.
type Fetcher struct {
	cfg    Config
	log    logx.Logger
	client *http.Client
	pages  loader
	shots  screenshotter
	url    string
}

func New(cfg Config, log logx.Logger) (*Fetcher, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("fetcher: base url is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	f := &Fetcher{
		cfg:    cfg,
		log:    log,
		client: &http.Client{},
		url:    cfg.ResultURL(),
	}
	switch cfg.Mode {
	case ModeBrowser:
		b := &browser{userAgent: cfg.UserAgent, chromePath: cfg.ChromePath, wait: cfg.WaitTimeout}
		f.pages, f.shots = b, b
	case ModeHTTP:
		f.pages = &httpLoader{client: f.client, userAgent: cfg.UserAgent}
	default:
		return nil, fmt.Errorf("fetcher: unknown mode %q", cfg.Mode)
	}
	return f, nil
}

func (f *Fetcher) URL() string { return f.url }

func (f *Fetcher) record() Record {
	return Record{
		Registration: f.cfg.Registration,
		SubjectCode:  f.cfg.SubjectCode,
		SubjectName:  f.cfg.SubjectName,
		ValueColumn:  f.cfg.ValueColumn,
	}
}

// Probe reports the site reachable iff its root answers 200 OK in time.
func (f *Fetcher) Probe(ctx context.Context) monitor.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.ProbeURL, nil)
	if err != nil {
		return monitor.Unreachable(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return monitor.Unreachable(err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	res := monitor.ProbeResult{HTTPStatus: resp.StatusCode, Latency: time.Since(start)}
	if resp.StatusCode != http.StatusOK {
		res.Err = fmt.Errorf("probe: status %d", resp.StatusCode)
		return res
	}
	res.Up = true
	return res
}

func (f *Fetcher) FetchSnapshot(ctx context.Context) monitor.ResultSnapshot {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	page, err := f.pages.Load(ctx, f.url, f.cfg.Registration)
	if err != nil {
		f.log.Debug("page load failed", logx.Err(err))
		return monitor.FailedSnapshot(monitor.ErrorTransient, "%v", err)
	}
	return Parse(strings.NewReader(page), f.record())
}

func (f *Fetcher) CaptureProof(ctx context.Context) ([]byte, error) {
	if f.shots == nil {
		return nil, ErrProofUnsupported
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProofTimeout)
	defer cancel()
	return f.shots.Screenshot(ctx, f.url, f.cfg.Registration)
}

type httpLoader struct {
	client    *http.Client
	userAgent string
}

func (l *httpLoader) Load(ctx context.Context, url, _ string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", l.userAgent)
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ monitor.Fetcher = (*Fetcher)(nil)
