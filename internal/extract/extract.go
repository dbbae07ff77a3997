// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

const (
	// MaxBytes is the largest accepted upload.
	MaxBytes = 20 << 20
	// MinChars is the shortest text worth analyzing.
	MinChars = 50
)

var (
	ErrTooLarge        = errors.New("extract: document exceeds 20 MB")
	ErrUnsupportedType = errors.New("extract: unsupported document type")
	ErrUnreadable      = errors.New("extract: could not read document")
	ErrTooShort        = fmt.Errorf("extract: fewer than %d characters of text", MinChars)
)

// Format is a supported document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
	FormatText Format = "txt"
)

var (
	byMIME = map[string]Format{
		"application/pdf": FormatPDF,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDOCX,
		"text/html":             FormatHTML,
		"application/xhtml+xml": FormatHTML,
		"text/plain":            FormatText,
		"text/markdown":         FormatText,
	}
	byExt = map[string]Format{
		".pdf":  FormatPDF,
		".docx": FormatDOCX,
		".html": FormatHTML,
		".htm":  FormatHTML,
		".txt":  FormatText,
		".md":   FormatText,
	}
)

// Detect picks a format from the declared content type, falling back to
// the file extension when the type is missing or generic.
func Detect(contentType, fileName string) (Format, error) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if f, ok := byMIME[strings.ToLower(mt)]; ok {
			return f, nil
		}
	}
	if f, ok := byExt[strings.ToLower(filepath.Ext(fileName))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, fileName, contentType)
}

// Text extracts normalized plain text of at least MinChars characters.
func Text(data []byte, contentType, fileName string) (string, error) {
	if len(data) > MaxBytes {
		return "", ErrTooLarge
	}
	format, err := Detect(contentType, fileName)
	if err != nil {
		return "", err
	}

	var raw string
	switch format {
	case FormatPDF:
		raw, err = pdfText(data)
	case FormatDOCX:
		raw, err = docxText(data)
	case FormatHTML:
		raw, err = htmlText(data)
	default:
		raw, err = plainText(data)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadable, format, err)
	}

	text := Normalize(raw)
	if utf8.RuneCountInString(text) < MinChars {
		return "", ErrTooShort
	}
	return text, nil
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses runs of blank space and blank lines and trims
// every line.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ToValidUTF8(s, "")
	s = spaceRun.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(newlineRun.ReplaceAllString(s, "\n\n"))
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", errors.New("text is not valid UTF-8")
	}
	return string(data), nil
}

func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return doc.Text(), nil
}
