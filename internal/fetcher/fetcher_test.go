package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correctionwatch/internal/monitor"
	logx "correctionwatch/pkg/logx"
)

func testConfig(base string) Config {
	return Config{
		Mode:         ModeHTTP,
		BaseURL:      base + "/result-three",
		Registration: "22156148040",
		SubjectCode:  "156606P",
		SubjectName:  "NPTEL Course-II Lab",
		Exam: Exam{
			Name:     "B.Tech. 6th Semester Examination, 2025",
			Semester: "VI",
			Session:  "2025",
			Held:     "November/2025",
		},
	}
}

func TestResultURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://beu-bih.ac.in")
	want := "https://beu-bih.ac.in/result-three?name=B.Tech.%206th%20Semester%20Examination%2C%202025&semester=VI&session=2025&regNo=22156148040&exam_held=November%2F2025"
	assert.Equal(t, want, cfg.ResultURL())
}

func TestAvailabilityCheckDefaultsToResultURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://beu-bih.ac.in").withDefaults()
	assert.Equal(t, cfg.ResultURL(), cfg.ProbeURL)
	assert.Equal(t, 3, cfg.ValueColumn)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, logx.Nop())
	assert.Error(t, err)

	cfg := testConfig("http://x")
	cfg.Mode = "carrier-pigeon"
	_, err = New(cfg, logx.Nop())
	assert.Error(t, err)
}

// newSite serves the result page with status. The site root always fails,
// so only requests for the built result URL can succeed.
func newSite(t *testing.T, status int, value string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/result-three", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "22156148040", r.URL.Query().Get("regNo"))
		assert.Equal(t, "November/2025", r.URL.Query().Get("exam_held"))
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, resultPage, value)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe(t *testing.T) {
	t.Parallel()

	up := newSite(t, http.StatusOK, "NA")
	f, err := New(testConfig(up.URL), logx.Nop())
	require.NoError(t, err)
	res := f.Probe(context.Background())
	assert.True(t, res.Up)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)

	bad := newSite(t, http.StatusBadGateway, "NA")
	f, err = New(testConfig(bad.URL), logx.Nop())
	require.NoError(t, err)
	res = f.Probe(context.Background())
	assert.False(t, res.Up)
	assert.Equal(t, http.StatusBadGateway, res.HTTPStatus)
	assert.Error(t, res.Err)
}

func TestProbeTimeoutIsUnreachable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.ProbeTimeout = 20 * time.Millisecond
	f, err := New(cfg, logx.Nop())
	require.NoError(t, err)

	res := f.Probe(context.Background())
	assert.False(t, res.Up)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestProbeRefusedIsUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f, err := New(testConfig(url), logx.Nop())
	require.NoError(t, err)
	assert.False(t, f.Probe(context.Background()).Up)
}

func TestFetchSnapshotHTTPMode(t *testing.T) {
	t.Parallel()

	srv := newSite(t, http.StatusOK, "68")
	f, err := New(testConfig(srv.URL), logx.Nop())
	require.NoError(t, err)

	snap := f.FetchSnapshot(context.Background())
	require.True(t, snap.Found, "%v", snap.Error)
	assert.Equal(t, "68", snap.RawValue)
	assert.Equal(t, monitor.StatusPass, snap.OverallStatus)
}

func TestFetchSnapshotServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f, err := New(testConfig(srv.URL), logx.Nop())
	require.NoError(t, err)
	snap := f.FetchSnapshot(context.Background())
	assert.False(t, snap.Found)
	require.NotNil(t, snap.Error)
	assert.Equal(t, monitor.ErrorTransient, snap.Error.Kind)
}

func TestCaptureProofNeedsBrowser(t *testing.T) {
	t.Parallel()

	f, err := New(testConfig("http://127.0.0.1:1"), logx.Nop())
	require.NoError(t, err)
	_, err = f.CaptureProof(context.Background())
	assert.ErrorIs(t, err, ErrProofUnsupported)
}

func TestBrowserAllocatorOptions(t *testing.T) {
	t.Parallel()

	b := &browser{userAgent: DefaultUserAgent}
	base := len(b.allocatorOptions())
	b.chromePath = "/usr/bin/chromium"
	assert.Equal(t, base+1, len(b.allocatorOptions()))
}
