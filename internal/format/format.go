// Package format renders monitor events as Telegram HTML messages.
package format

import (
	"fmt"
	"html"
	"strings"
	"time"
	_ "time/tzdata"

	"correctionwatch/internal/monitor"
)

// TimeLayout renders timestamps as day-month-year with a 12-hour clock and
// zone abbreviation, e.g. "05-12-2025 09:30:00 AM IST".
const TimeLayout = "02-01-2006 03:04:05 PM MST"

type Config struct {
	Registration string
	SubjectCode  string
	SubjectName  string
	ExamName     string
	Location     *time.Location
}

// Formatter implements monitor.Formatter.
type Formatter struct {
	cfg Config
}

func New(cfg Config) *Formatter {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Formatter{cfg: cfg}
}

// LoadLocation resolves an IANA zone name, falling back to UTC when the
// name is empty.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func (f *Formatter) Time(t time.Time) string { return t.In(f.cfg.Location).Format(TimeLayout) }

func (f *Formatter) subject() string {
	switch {
	case f.cfg.SubjectCode != "" && f.cfg.SubjectName != "":
		return f.cfg.SubjectCode + " - " + f.cfg.SubjectName
	case f.cfg.SubjectCode != "":
		return f.cfg.SubjectCode
	default:
		return f.cfg.SubjectName
	}
}

type message struct {
	b strings.Builder
}

func (m *message) title(icon, text string) {
	fmt.Fprintf(&m.b, "%s <b>%s</b>\n\n", icon, esc(text))
}

func (m *message) field(icon, label, value string) {
	fmt.Fprintf(&m.b, "%s <b>%s:</b> %s\n", icon, esc(label), esc(value))
}

func (m *message) note(text string) {
	fmt.Fprintf(&m.b, "\n<i>%s</i>", esc(text))
}

func (m *message) String() string { return strings.TrimRight(m.b.String(), "\n") }

func esc(s string) string { return html.EscapeString(s) }

func (f *Formatter) Startup(cfg monitor.Config, at time.Time) string {
	var m message
	m.title("🚀", "Result correction monitor started")
	m.field("📝", "Registration", f.cfg.Registration)
	m.field("🎯", "Subject", f.subject())
	if f.cfg.ExamName != "" {
		m.field("🎓", "Exam", f.cfg.ExamName)
	}
	m.field("❌", "Current", cfg.Rules.Placeholder)
	m.field("✅", "Expected", cfg.Rules.Expected)
	m.field("🔄", "Check interval", cfg.Availability.PollInterval.String())
	m.field("⏰", "Started", f.Time(at))
	m.note("You will be notified as soon as the value changes.")
	return m.String()
}

func (f *Formatter) Event(ev monitor.Event, at time.Time) string {
	var m message
	switch e := ev.(type) {
	case monitor.Detected:
		m.title("🚨", "Result correction detected")
		m.field("📚", "Subject", f.subject())
		m.field("📊", "New value", e.Value)
		m.field("📝", "Result", string(e.Status))
		m.field("🕐", "Detected", f.Time(at))
		m.note(fmt.Sprintf("Verifying over the next %d checks...", monitor.DefaultVerifyThreshold-1))
	case monitor.Confirmed:
		m.title("✅", "Correction confirmed")
		m.field("📚", "Subject", f.subject())
		m.field("📈", "Value", e.Value)
		m.field("🏆", "Result", string(e.Status))
		m.field("🔁", "Consistent reads", fmt.Sprint(e.Checks))
		m.field("⏰", "Confirmed", f.Time(at))
	case monitor.Reverted:
		m.title("⚠️", "Correction reverted")
		m.field("📚", "Subject", f.subject())
		m.field("📊", "Value", e.Value)
		m.field("🕐", "At", f.Time(at))
		m.note("This may be temporary. Monitoring continues.")
	case monitor.Changed:
		m.title("ℹ️", "Value changed")
		m.field("📚", "Subject", f.subject())
		m.field("📊", "Now shows", e.Value)
		m.field("📝", "Result", string(e.Status))
		m.field("🕐", "At", f.Time(at))
	case monitor.Down:
		m.title("🔴", "Result site is down")
		m.field("⏰", "Since", f.Time(e.Since))
		m.field("📡", "Failed checks", fmt.Sprint(e.Failures))
		m.note("You will be notified when it is back online.")
	case monitor.StillDown:
		m.title("🔴", "Result site still down")
		m.field("⏰", "Down for", minutes(e.Minutes()))
		m.field("🕐", "Last check", f.Time(at))
	case monitor.BackUp:
		m.title("🟢", "Result site is back online")
		m.field("⏰", "Was down for", minutes(e.Minutes()))
		m.field("🕐", "Back at", f.Time(at))
		m.note("Resuming correction monitoring.")
	default:
		m.title("❔", string(ev.Kind()))
		m.field("🕐", "At", f.Time(at))
	}
	return m.String()
}

func (f *Formatter) ProofCaption(ev monitor.Detected, at time.Time) string {
	var m message
	m.title("📸", "Proof")
	m.field("📚", "Subject", f.subject())
	m.field("📊", "Value", ev.Value)
	m.field("🕐", "Captured", f.Time(at))
	return m.String()
}

func (f *Formatter) Heartbeat(st monitor.Status, at time.Time) string {
	var m message
	m.title("💓", "Monitor heartbeat")
	m.field("📚", "Subject", f.subject())
	m.field("🧭", "Phase", string(st.Phase))
	if st.LastValue != "" {
		m.field("📊", "Last value", st.LastValue)
	}
	if st.Phase == monitor.PhaseDetected && st.VerifiedCount > 0 {
		m.field("🔁", "Verified", fmt.Sprintf("%d/%d", st.VerifiedCount, monitor.DefaultVerifyThreshold))
	}
	if st.SourceUp {
		m.field("📡", "Site", "up")
	} else {
		m.field("📡", "Site", "down since "+f.Time(st.DownSince))
	}
	m.field("🔢", "Checks", fmt.Sprint(st.Checks))
	if !st.StartedAt.IsZero() {
		m.field("⏱", "Uptime", at.Sub(st.StartedAt).Truncate(time.Minute).String())
	}
	m.field("🕐", "At", f.Time(at))
	return m.String()
}

func minutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

var _ monitor.Formatter = (*Formatter)(nil)
