// Package extract validates uploaded documents and reads their plain text.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxUploadSize is the largest accepted document, in bytes.
const MaxUploadSize = 20 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("file is empty")
)

// Extensions lists the accepted document types.
var Extensions = []string{".pdf", ".docx", ".txt", ".md"}

func ext(name string) string { return strings.ToLower(filepath.Ext(name)) }

// ValidateUpload checks the extension and size of a selected file.
func ValidateUpload(name string, size int64) error {
	e := ext(name)
	ok := false
	for _, x := range Extensions {
		if x == e {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%s: %w (ammessi %s)", name, ErrUnsupportedType, strings.Join(Extensions, ", "))
	}
	if size <= 0 {
		return fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	if size > MaxUploadSize {
		return fmt.Errorf("%s: %w (%d MB max)", name, ErrTooLarge, MaxUploadSize>>20)
	}
	return nil
}

// Text returns the plain text of a document, chosen by extension.
func Text(name string, data []byte) (string, error) {
	switch ext(name) {
	case ".pdf":
		return pdfText(data)
	case ".docx":
		return docxText(data)
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return strings.ToValidUTF8(string(data), "�"), nil
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrUnsupportedType)
}

// pdfText concatenates the text of every page, one page per line block.
// The reader panics on some malformed files; that is reported as an error.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: malformed file: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pt, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, pt)
	}
	return strings.Join(pages, "\n"), nil
}

// docxText reads the paragraphs of word/document.xml. Tabs and breaks inside
// a paragraph become spaces; paragraphs are joined with newlines.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("read docx: word/document.xml missing")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer rc.Close()

	var (
		paras []string
		cur   strings.Builder
		inT   bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inT = true
			case "tab", "br":
				cur.WriteByte(' ')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "p":
				paras = append(paras, cur.String())
				cur.Reset()
			}
		case xml.CharData:
			if inT {
				cur.Write(t)
			}
		}
	}
	if cur.Len() > 0 {
		paras = append(paras, cur.String())
	}
	return strings.Join(paras, "\n"), nil
}
