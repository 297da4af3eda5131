package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correctionwatch/internal/monitor"
)

const resultPage = `<!doctype html>
<html><head><title>Result</title><script>var x = "RESULT : FAIL";</script></head>
<body>
  <div class="student">Registration No: <span>22156148040</span></div>
  <table class="marks">
    <tr><th>#</th><th>Code</th><th>Subject</th><th>Marks</th></tr>
    <tr><td>1</td><td>156601</td><td>Machine Learning</td><td>71</td></tr>
    <tr><td>2</td><td>156606P</td><td>NPTEL Course-II Lab</td><td> %s </td></tr>
  </table>
  <p>RESULT   :   PASS</p>
</body></html>`

var testRecord = Record{
	Registration: "22156148040",
	SubjectCode:  "156606P",
	SubjectName:  "NPTEL Course-II Lab",
	ValueColumn:  3,
}

func page(value string) *strings.Reader {
	return strings.NewReader(strings.Replace(resultPage, "%s", value, 1))
}

func TestParseReadsValueCell(t *testing.T) {
	t.Parallel()

	snap := Parse(page("NA"), testRecord)
	require.True(t, snap.Found, "%v", snap.Error)
	assert.Equal(t, "NA", snap.RawValue)
	assert.Equal(t, monitor.StatusPass, snap.OverallStatus)
	assert.Nil(t, snap.Error)
}

func TestParseNormalizesCellText(t *testing.T) {
	t.Parallel()

	// Fullwidth digits and a zero-width space around the value.
	snap := Parse(page("\u200b\uff16\uff18\u00a0"), testRecord)
	require.True(t, snap.Found)
	assert.Equal(t, "68", snap.RawValue)
}

func TestParseMatchesBySubjectName(t *testing.T) {
	t.Parallel()

	rec := testRecord
	rec.SubjectCode = ""
	snap := Parse(page("68"), rec)
	require.True(t, snap.Found)
	assert.Equal(t, "68", snap.RawValue)
}

func TestParseMissingRegistrationIsStructural(t *testing.T) {
	t.Parallel()

	rec := testRecord
	rec.Registration = "99999999999"
	snap := Parse(page("68"), rec)
	assert.False(t, snap.Found)
	require.NotNil(t, snap.Error)
	assert.Equal(t, monitor.ErrorStructural, snap.Error.Kind)
	assert.Contains(t, snap.Error.Message, "99999999999")
}

func TestParseMissingSubjectIsStructural(t *testing.T) {
	t.Parallel()

	rec := testRecord
	rec.SubjectCode, rec.SubjectName = "000000", "Nope"
	snap := Parse(page("68"), rec)
	assert.False(t, snap.Found)
	require.NotNil(t, snap.Error)
	assert.Equal(t, monitor.ErrorStructural, snap.Error.Kind)
	assert.Contains(t, snap.Error.Message, "000000")
}

func TestParseShortRowIsSkipped(t *testing.T) {
	t.Parallel()

	doc := `<html><body>22156148040<table>
<tr><td>156606P</td><td>NPTEL Course-II Lab</td></tr>
</table></body></html>`
	snap := Parse(strings.NewReader(doc), testRecord)
	assert.False(t, snap.Found)
}

func TestOverallStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, monitor.StatusPass, overallStatus("Result : Pass"))
	assert.Equal(t, monitor.StatusFail, overallStatus("RESULT : FAIL"))
	assert.Equal(t, monitor.StatusUnknown, overallStatus("RESULT: withheld"))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", Normalize("  a\n\tb   c "))
	assert.Equal(t, "NA", Normalize("\ufeffNA\u200d"))
	assert.Equal(t, "", Normalize(" \u200b "))
}
