package fingerprint

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Kind is the broad content class of an upload.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

const mimePDF = "application/pdf"

// NormalizeMimeType lowercases mimeType and drops parameters. Generic types are
// replaced by a sniffed type, then by the file extension.
func NormalizeMimeType(mimeType, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean != "" && clean != "application/octet-stream" && clean != "binary/octet-stream" {
		return clean
	}
	if len(data) > 0 {
		if sniffed := strings.Split(http.DetectContentType(data), ";")[0]; sniffed != "application/octet-stream" {
			return sniffed
		}
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return mimePDF
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".heic":
		return "image/heic"
	}
	return clean
}

// DetectKind classifies data as a PDF, an image, or neither.
func DetectKind(data []byte, mimeType, fileName string) Kind {
	mt := NormalizeMimeType(mimeType, fileName, data)
	switch {
	case mt == mimePDF || bytes.HasPrefix(data, []byte("%PDF-")):
		return KindPDF
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	}
	return KindUnknown
}

// PageCount returns the number of pages of a PDF, or 1 for anything else that
// is not a PDF. ok is false when the PDF could not be parsed.
func PageCount(data []byte, mimeType, fileName string) (int, bool) {
	if DetectKind(data, mimeType, fileName) != KindPDF {
		return 1, true
	}
	r, err := openPDF(data)
	if err != nil {
		return 0, false
	}
	return r.NumPage(), true
}

// openPDF guards the parser, which panics on some malformed inputs.
func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, io.ErrUnexpectedEOF
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// pdfFingerprint hashes the PDF's normalized text so re-exports of the same
// statement match. Scanned PDFs with no text layer fall back to the raw bytes.
func pdfFingerprint(data []byte) string {
	text, err := pdfText(data)
	if err != nil {
		return sha256Fingerprint(data)
	}
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if norm == "" {
		return sha256Fingerprint(data)
	}
	return sha256Fingerprint([]byte(norm))
}

func pdfText(data []byte) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", io.ErrUnexpectedEOF
		}
	}()
	r, err := openPDF(data)
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
