package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lukasjarosch/go-docx"
)

// go-docx resets package-level run counters on every open.
var docxMu sync.Mutex

// DOCX returns the text of every non-empty paragraph of a Word document.
// go-docx only opens the archive and hands back word/document.xml; the
// paragraph text is read from that part by paragraphs.
func DOCX(content []byte) (string, error) {
	body, err := documentXML(content)
	if err != nil {
		return "", err
	}
	return paragraphs(body)
}

func documentXML(content []byte) ([]byte, error) {
	doc, err := openDocx(content)
	if err == nil {
		defer doc.Close()
		return doc.GetFile(docx.DocumentXml), nil
	}

	// go-docx refuses run layouts its placeholder parser does not
	// understand. Read the part directly.
	zr, zerr := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if zerr != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	f, zerr := zr.Open(docx.DocumentXml)
	if zerr != nil {
		return nil, fmt.Errorf("open docx: %w", zerr)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func openDocx(content []byte) (doc *docx.Document, err error) {
	docxMu.Lock()
	defer docxMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse runs: %v", r)
		}
	}()
	return docx.OpenBytes(content)
}

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

func paragraphs(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var (
		lines  []string
		para   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(para.String()); line != "" {
					lines = append(lines, line)
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if line := strings.TrimSpace(para.String()); line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
