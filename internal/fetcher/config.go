package fetcher

import (
	"net/url"
	"strings"
	"time"
)

type Mode string

const (
	// ModeBrowser renders the page in headless Chrome. The result page
	// fills its table from script, so this is the default.
	ModeBrowser Mode = "browser"
	// ModeHTTP fetches the raw HTML with a plain GET. No proof capture.
	ModeHTTP Mode = "http"
)

type Exam struct {
	Name     string
	Semester string
	Session  string
	Held     string
}

type Config struct {
	Mode Mode

	BaseURL string
	// ProbeURL defaults to ResultURL. Only a 200 counts as up.
	ProbeURL string

	Registration string
	SubjectCode  string
	SubjectName  string
	Exam         Exam
	// ValueColumn is the zero-based cell index holding the tracked value.
	// Zero selects the default, the fourth cell.
	ValueColumn int

	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	ProofTimeout time.Duration
	// WaitTimeout bounds waiting for the registration number to render.
	WaitTimeout time.Duration

	UserAgent  string
	ChromePath string
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeBrowser
	}
	if c.ValueColumn <= 0 {
		c.ValueColumn = 3
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 40 * time.Second
	}
	if c.ProofTimeout <= 0 {
		c.ProofTimeout = 30 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 15 * time.Second
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if strings.TrimSpace(c.ProbeURL) == "" {
		c.ProbeURL = c.ResultURL()
	}
	return c
}

// ResultURL builds the record page URL. Parameter order is fixed and values
// are percent-encoded with %20 for spaces.
func (c Config) ResultURL() string {
	params := [][2]string{
		{"name", c.Exam.Name},
		{"semester", c.Exam.Semester},
		{"session", c.Exam.Session},
		{"regNo", c.Registration},
		{"exam_held", c.Exam.Held},
	}
	var b strings.Builder
	b.WriteString(c.BaseURL)
	sep := "?"
	if strings.Contains(c.BaseURL, "?") {
		sep = "&"
	}
	for _, p := range params {
		b.WriteString(sep)
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(queryEscape(p[1]))
		sep = "&"
	}
	return b.String()
}

func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
