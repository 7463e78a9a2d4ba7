package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"event_type", "student_id", "detail"},
		Rows: []map[string]string{
			{"event_type": "REGISTER", "student_id": "stu-1"},
			{"event_type": "OVERRIDE", "student_id": "stu-2", "detail": `{"reason":"dean approval, thesis track"}`},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestRenderCSV(t *testing.T) {
	out, err := NewRenderer().Render(FormatCSV, sampleDataset(), "")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "event_type,student_id,detail", lines[0])
	assert.Equal(t, "REGISTER,stu-1,", lines[1])
	assert.Contains(t, lines[2], `"{""reason"":""dean approval, thesis track""}"`)
}

func TestRenderPDF(t *testing.T) {
	out, err := NewRenderer().Render(FormatPDF, sampleDataset(), "audit trail")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := NewRenderer().Render(FormatCSV, Dataset{}, "")
	assert.Error(t, err)
}
