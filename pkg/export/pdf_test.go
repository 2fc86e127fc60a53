package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/internal/types"
)

func TestPDFExporter(t *testing.T) {
	e := NewPDFExporter()

	require.NoError(t, e.AddArticle(models.Article{
		Title:    "β-blocker titration and 30-day readmission",
		URL:      "https://pubmed.ncbi.nlm.nih.gov/123/",
		Abstract: "Patients (n=412) were followed ≥ 30 days. Café-style clinics helped.",
	}))
	require.NoError(t, e.AddArticle(models.Article{
		Title:    "Sepsis survivors",
		URL:      "https://pubmed.ncbi.nlm.nih.gov/456/",
		Abstract: "No abstract available.",
	}))
	assert.Equal(t, 2, e.Len())

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "%PDF-"))
	assert.Contains(t, out, "%%EOF")

	// Finalized documents reject further use
	assert.ErrorIs(t, e.AddArticle(models.Article{Title: "late"}), types.ErrExport)
	assert.ErrorIs(t, e.Write(&buf), types.ErrExport)
}

func TestPDFExporterPaginates(t *testing.T) {
	e := NewPDFExporter()
	abstract := strings.Repeat("Transitional care reduced readmissions. ", 40)

	for i := 0; i < 12; i++ {
		require.NoError(t, e.AddArticle(models.Article{
			Title:    fmt.Sprintf("Study %d", i),
			URL:      fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%d/", i),
			Abstract: abstract,
		}))
	}

	assert.Greater(t, e.PageCount(), 1)
}

func TestPDFExporterEmptyDocument(t *testing.T) {
	e := NewPDFExporter()

	path := filepath.Join(t.TempDir(), "pubmed_abstracts.pdf")
	require.NoError(t, e.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Equal(t, 0, e.Len())
}

func TestPDFExporterWriteFileBadPath(t *testing.T) {
	e := NewPDFExporter()
	err := e.WriteFile(filepath.Join(t.TempDir(), "missing", "out.pdf"))
	assert.ErrorIs(t, err, types.ErrExport)
}
