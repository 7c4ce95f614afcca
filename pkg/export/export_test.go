package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(cols int) Dataset {
	headers := make([]string, 0, cols)
	row := map[string]string{}
	for i := 0; i < cols; i++ {
		h := string(rune('a' + i))
		headers = append(headers, h)
		row[h] = strings.Repeat("x", 80)
	}
	return Dataset{Headers: headers, Rows: []map[string]string{row}}
}

func TestCSVRenderOrdersColumnsByHeader(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"subject", "status"},
		Rows:    []map[string]string{{"status": "completed", "subject": "Math"}},
	}, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "subject,status\nMath,completed\n", string(out))
}

func TestRenderersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestPDFRenderWideTable(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(8), "Sessions")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", r.ContentType())
	_, err = ForFormat("xlsx")
	assert.Error(t, err)
}
