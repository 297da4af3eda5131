package fetcher

import (
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"correctionwatch/internal/monitor"
)

// Record identifies the row to read.
type Record struct {
	Registration string
	SubjectCode  string
	SubjectName  string
	ValueColumn  int
}

// Parse locates the subject row in a rendered result page and reads its
// value cell. A page that loaded but lacks the record yields a structural
// failure snapshot.
func Parse(r io.Reader, rec Record) monitor.ResultSnapshot {
	doc, err := html.Parse(r)
	if err != nil {
		return monitor.FailedSnapshot(monitor.ErrorStructural, "parse page: %v", err)
	}

	page := Normalize(textOf(doc))
	if rec.Registration != "" && !strings.Contains(page, rec.Registration) {
		return monitor.FailedSnapshot(monitor.ErrorStructural, "registration %s not on page", rec.Registration)
	}
	status := overallStatus(page)

	code, name := Normalize(rec.SubjectCode), Normalize(rec.SubjectName)
	for _, row := range findAll(doc, atom.Tr) {
		text := Normalize(textOf(row))
		if !(code != "" && strings.Contains(text, code)) && !(name != "" && strings.Contains(text, name)) {
			continue
		}
		cells := findAll(row, atom.Td)
		if len(cells) <= rec.ValueColumn {
			continue
		}
		return monitor.FoundSnapshot(Normalize(textOf(cells[rec.ValueColumn])), status)
	}
	return monitor.FailedSnapshot(monitor.ErrorStructural, "subject %s not found in result table", firstNonEmpty(rec.SubjectCode, rec.SubjectName))
}

func overallStatus(page string) monitor.OverallStatus {
	up := strings.ToUpper(page)
	switch {
	case strings.Contains(up, "RESULT : PASS"):
		return monitor.StatusPass
	case strings.Contains(up, "RESULT : FAIL"):
		return monitor.StatusFail
	default:
		return monitor.StatusUnknown
	}
}

// Normalize folds compatibility characters, drops invisible format
// characters and collapses whitespace.
func Normalize(s string) string {
	cleaner := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Cf)), norm.NFKC)
	out, _, err := transform.String(cleaner, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			// Cell and block boundaries separate words.
			b.WriteByte(' ')
		}
	}
	walk(n)
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
