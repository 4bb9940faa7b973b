package documents

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/kavlartius217/meditrust/pkg/formatting"
)

// Supported report content types.
const (
	ContentTypePDF      = "application/pdf"
	ContentTypeMarkdown = "text/markdown"
	ContentTypeText     = "text/plain"
)

// Parsed is the decoded text of a report.
type Parsed struct {
	Text        string
	ContentType string
	PageCount   *int
}

// Loader reads reports from the local filesystem. MaxBytes of zero means
// no size limit.
type Loader struct {
	MaxBytes int64
}

// Load returns the plain text of the report at path. Every failure is a
// *SourceLoadFailure.
func (l Loader) Load(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", loadFailure(path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", loadFailure(path, err)
	}
	if info.IsDir() {
		return "", loadFailure(path, fmt.Errorf("%w: is a directory", ErrInvalidFile))
	}
	if l.MaxBytes > 0 && info.Size() > l.MaxBytes {
		return "", loadFailure(path, fmt.Errorf("%w: %s exceeds %s", ErrFileTooLarge,
			formatting.FormatBytes(info.Size(), 1), formatting.FormatBytes(l.MaxBytes, 1)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", loadFailure(path, err)
	}

	p, err := Parse(path, "", data)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

// LoadDocument reads a report with no size limit.
func LoadDocument(ctx context.Context, path string) (string, error) {
	return Loader{}.Load(ctx, path)
}

// Parse decodes data as PDF, Markdown or plain text. The file extension
// wins over the declared content type, which wins over sniffing.
func Parse(filename, contentType string, data []byte) (*Parsed, error) {
	ct := DetectContentType(filename, contentType, data)
	p := &Parsed{ContentType: ct}

	switch ct {
	case ContentTypePDF:
		count, err := api.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return nil, loadFailure(filename, fmt.Errorf("%w: %v", ErrInvalidFile, err))
		}
		p.PageCount = &count

		text, err := recovered(func() (string, error) { return pdfText(data) })
		if err != nil {
			return nil, loadFailure(filename, err)
		}
		p.Text = text
	case ContentTypeMarkdown, "text/x-markdown", ContentTypeText:
		if !utf8.Valid(data) {
			return nil, loadFailure(filename, fmt.Errorf("%w: not valid UTF-8", ErrInvalidFile))
		}
		p.Text = strings.TrimPrefix(string(data), "\ufeff")
	default:
		return nil, loadFailure(filename, fmt.Errorf("%w: %s", ErrUnsupportedType, ct))
	}

	p.Text = strings.ReplaceAll(p.Text, "\r\n", "\n")
	if strings.TrimSpace(p.Text) == "" {
		return nil, loadFailure(filename, ErrNoText)
	}
	return p, nil
}

// DetectContentType resolves the media type of an upload.
func DetectContentType(filename, header string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return ContentTypePDF
	case ".md", ".markdown":
		return ContentTypeMarkdown
	case ".txt", ".text":
		return ContentTypeText
	}

	if mt, _, err := mime.ParseMediaType(strings.TrimSpace(header)); err == nil && mt != "application/octet-stream" {
		return mt
	}

	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

// recovered runs extract and turns a decoder panic into ErrInvalidFile.
// The PDF text decoder panics on some malformed content streams that
// still pass page counting.
func recovered(extract func() (string, error)) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf text extraction: %v", ErrInvalidFile, r)
		}
	}()
	return extract()
}

// pdfText extracts page text in page order. Pages that fail to decode are
// skipped; a scanned PDF with no text layer yields ErrNoText.
func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	if sb.Len() == 0 {
		return "", ErrNoText
	}
	return sb.String(), nil
}
