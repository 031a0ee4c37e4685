package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUpload(t *testing.T) {
	assert.NoError(t, ValidateUpload("scheda.PDF", 1024))
	assert.NoError(t, ValidateUpload("note.md", 1))
	assert.ErrorIs(t, ValidateUpload("foto.png", 10), ErrUnsupportedType)
	assert.ErrorIs(t, ValidateUpload("vuoto.txt", 0), ErrEmpty)
	assert.ErrorIs(t, ValidateUpload("grande.docx", MaxUploadSize+1), ErrTooLarge)
	assert.NoError(t, ValidateUpload("limite.docx", MaxUploadSize))
}

func TestTextPlain(t *testing.T) {
	got, err := Text("a.txt", []byte("riga 1\nriga 2"))
	require.NoError(t, err)
	assert.Equal(t, "riga 1\nriga 2", got)

	_, err = Text("a.xls", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func docx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTextDocx(t *testing.T) {
	data := docx(t, `<w:p><w:r><w:t>Livello</w:t></w:r><w:r><w:tab/><w:t>85 dB</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t xml:space="preserve">Secondo </w:t></w:r><w:r><w:t>paragrafo</w:t></w:r></w:p>`)
	got, err := Text("relazione.docx", data)
	require.NoError(t, err)
	assert.Equal(t, "Livello 85 dB\nSecondo paragrafo", got)
}

func TestTextDocxWithoutDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("other.xml")
	require.NoError(t, zw.Close())
	_, err := Text("x.docx", buf.Bytes())
	assert.Error(t, err)

	_, err = Text("x.docx", []byte("not a zip"))
	assert.Error(t, err)
}

func TestTextBrokenPDF(t *testing.T) {
	_, err := Text("x.pdf", []byte("%PDF-1.4 broken"))
	assert.Error(t, err)
}
