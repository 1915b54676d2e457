package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
` + body + `
</w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDOCXParagraphs(t *testing.T) {
	content := buildDocx(t, `
<w:p><w:r><w:t>1. A function maps</w:t></w:r><w:r><w:t xml:space="preserve"> inputs to outputs.</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>continued</w:t><w:tab/><w:t>here</w:t></w:r></w:p>
<w:p><w:r><w:t>2. x = 5</w:t><w:br/><w:t>y = 3</w:t></w:r></w:p>
`)

	got, err := DOCX(content)
	require.NoError(t, err)
	assert.Equal(t, "1. A function maps inputs to outputs.\ncontinued\there\n2. x = 5\ny = 3", got)
}

func TestDOCXRejectsNonArchive(t *testing.T) {
	_, err := DOCX([]byte("definitely not a zip file"))
	assert.Error(t, err)
}

func TestDOCXMissingDocumentPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = DOCX(buf.Bytes())
	assert.Error(t, err)
}

func TestRegistryDispatch(t *testing.T) {
	r := New()
	ctx := context.Background()

	got, err := r.Extract(ctx, []byte("1. one\n2. two"), "sheet.TXT")
	require.NoError(t, err)
	assert.Equal(t, "1. one\n2. two", got)

	got, err = r.Extract(ctx, buildDocx(t, `<w:p><w:r><w:t>Q1. yes</w:t></w:r></w:p>`), "john_smith.docx")
	require.NoError(t, err)
	assert.Equal(t, "Q1. yes", got)
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	r := New()
	for _, name := range []string{"scan.png", "notes", "sheet.odt"} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Extract(context.Background(), []byte("x"), name)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestRegistryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Extract(ctx, []byte("x"), "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryRegister(t *testing.T) {
	r := New()
	assert.False(t, r.Supported("a.md"))
	r.Register(".MD", Plain)
	assert.True(t, r.Supported("b.md"))
}

func TestPDFRejectsGarbage(t *testing.T) {
	_, err := PDF([]byte("%PDF-1.4 truncated"))
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "pdf", Extension("dir/Name.PDF"))
	assert.Equal(t, "", Extension("README"))
}
