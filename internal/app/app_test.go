package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correctionwatch/internal/config"
	"correctionwatch/internal/monitor"
	"correctionwatch/internal/storage"
	logx "correctionwatch/pkg/logx"
)

const resultPage = `<html><body>
<div>Registration No: 22156148040</div>
<table>
  <tr><th>#</th><th>Code</th><th>Subject</th><th>Marks</th></tr>
  <tr><td>1</td><td>156606P</td><td>NPTEL Course-II Lab</td><td>%s</td></tr>
</table>
<p>RESULT : PASS</p>
</body></html>`

type fakeBot struct {
	mu    sync.Mutex
	texts []string
}

func (b *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.texts = append(b.texts, string(body))
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":5,"type":"group"},"text":"ok"}}`)
}

func (b *fakeBot) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.texts)
}

func newResultSite(t *testing.T, value string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/result-three", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, resultPage, value)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeAppConfig(t *testing.T, siteURL, botURL, journal string) string {
	t.Helper()
	body := fmt.Sprintf(`
telegram: {token: "123:abc", chat_id: 5, api_url: %q}
target:
  base_url: %q
  registration_no: "22156148040"
  subject_code: "156606P"
  subject_name: "NPTEL Course-II Lab"
  exam: {name: "B.Tech. 6th Semester Examination, 2025", semester: "VI", session: "2025", held: "November/2025"}
  placeholder: "NA"
  expected: "68"
monitor: {poll_interval: "20ms", timezone: "Asia/Kolkata"}
fetcher: {mode: http, probe_timeout: "2s", fetch_timeout: "2s"}
notifier: {retry_base: "10ms", rate_per_sec: 50}
logging: {level: error}
storage: {driver: file, path: %q}
systemd: {notify: false}
`, botURL, siteURL+"/result-three", journal)
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func loadConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	m := config.NewConfigManager(path)
	m.SetLookup(nil)
	cfg, err := m.Load()
	require.NoError(t, err)
	return cfg
}

func TestAppDetectsAndConfirmsCorrection(t *testing.T) {
	site := newResultSite(t, "68")
	bot := &fakeBot{}
	botSrv := httptest.NewServer(bot)
	t.Cleanup(botSrv.Close)
	journal := filepath.Join(t.TempDir(), "journal.jsonl")

	path := writeAppConfig(t, site.URL, botSrv.URL, journal)
	cfgm := config.NewConfigManager(path)
	cfgm.SetLookup(nil)
	a, err := New(cfgm)
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool {
		return a.Monitor().Status().Phase == monitor.PhaseConfirmed
	}, 10*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		entries, err := a.store.Recent(context.Background(), 10)
		return err == nil && len(entries) == 2
	}, 5*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx, StopSIGTERM))
	assert.NoError(t, a.Err())

	// startup, detected, confirmed
	assert.GreaterOrEqual(t, bot.count(), 3)

	entries, err := History(context.Background(), loadConfig(t, path), 10, logx.Nop())
	require.NoError(t, err)
	var kinds []string
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []string{"detected", "confirmed"}, kinds)
	assert.True(t, entries[0].Delivered)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("telegram: {token: x}\n"), 0o600))
	cfgm := config.NewConfigManager(p)
	cfgm.SetLookup(nil)
	_, err := New(cfgm)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestValidateChecksComponentRules(t *testing.T) {
	site := newResultSite(t, "NA")
	cfg := loadConfig(t, writeAppConfig(t, site.URL, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "j.jsonl")))
	require.NoError(t, Validate(cfg))

	bad := *cfg
	bad.Monitor.Heartbeat = "every tuesday"
	assert.ErrorContains(t, Validate(&bad), "monitor.heartbeat")

	bad = *cfg
	bad.Ops = config.OpsConfig{Enabled: true, Addr: "0.0.0.0:9090"}
	assert.ErrorContains(t, Validate(&bad), "ops")

	bad.Ops.Token = "s3cret"
	assert.NoError(t, Validate(&bad))
}

func TestCheckReadsOnce(t *testing.T) {
	site := newResultSite(t, "NA")
	cfg := loadConfig(t, writeAppConfig(t, site.URL, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "j.jsonl")))

	rep, err := Check(context.Background(), cfg, logx.Nop())
	require.NoError(t, err)
	assert.True(t, rep.Probe.Up)
	require.True(t, rep.Fetched)
	require.True(t, rep.Snapshot.Found)
	assert.Equal(t, "NA", rep.Snapshot.RawValue)
	assert.Equal(t, monitor.IsPlaceholder, rep.Class)
	assert.True(t, strings.HasPrefix(rep.URL, site.URL+"/result-three?"))
}

func TestHistoryDisabled(t *testing.T) {
	cfg := &config.Config{}
	_, err := History(context.Background(), cfg, 5, logx.Nop())
	assert.ErrorIs(t, err, storage.ErrDisabled)
}

func TestSendTest(t *testing.T) {
	site := newResultSite(t, "NA")
	bot := &fakeBot{}
	botSrv := httptest.NewServer(bot)
	t.Cleanup(botSrv.Close)
	cfg := loadConfig(t, writeAppConfig(t, site.URL, botSrv.URL, filepath.Join(t.TempDir(), "j.jsonl")))

	d, err := SendTest(context.Background(), cfg, logx.Nop())
	require.NoError(t, err)
	assert.True(t, d.OK())
	require.Equal(t, 1, bot.count())
	assert.Contains(t, bot.texts[0], "Test message")
}

func TestStatusLine(t *testing.T) {
	st := monitor.Status{Phase: monitor.PhaseDetected, VerifiedCount: 2, SourceUp: false, Checks: 9}
	assert.Equal(t, "phase=detected verified=2 source=down checks=9", statusLine(st))
}

func TestMapMonitorConfig(t *testing.T) {
	cfg := &config.Config{Target: config.TargetConfig{Placeholder: " NA ", Expected: "68"}}
	d, err := cfg.Durations()
	require.NoError(t, err)
	mc := mapMonitorConfig(cfg, d)
	assert.Equal(t, "NA", mc.Rules.Placeholder)
	assert.Equal(t, monitor.DefaultVerifyThreshold, mc.Rules.VerifyThreshold)
	assert.Equal(t, 10, mc.Availability.Threshold())
	assert.Greater(t, mc.FetchTimeout, d.FetchTimeout)

	nc := mapNotifierConfig(cfg, d)
	assert.Equal(t, 3, nc.Attempts())
}
