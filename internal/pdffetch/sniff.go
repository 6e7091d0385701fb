// Package pdffetch downloads notification PDFs through an
// authenticated portal session. The portal's blob endpoint is
// binary/HTML-ambiguous: sometimes raw PDF bytes, sometimes an HTML
// error page with the PDF base64-embedded inside it. Everything here
// sniffs payloads instead of trusting headers.
package pdffetch

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPDFPayload is returned when a download body is neither a
// raw PDF nor an HTML page with an embedded base64 PDF, or when the
// result is too small to be a plausible document.
var ErrInvalidPDFPayload = errors.New("invalid pdf payload")

// MinPDFSize is the smallest plausible notification PDF. Anything
// smaller is an error page in disguise.
const MinPDFSize = 1024

var pdfMagic = []byte("%PDF")

// base64PDFRe matches a base64 blob that decodes to a PDF: "JVBERi0"
// is "%PDF-" in base64.
var base64PDFRe = regexp.MustCompile(`JVBERi0[A-Za-z0-9+/=]+`)

// ExtractPDF sniffs a download body and returns the PDF bytes.
// Checks, in order: raw %PDF magic prefix; base64 PDF embedded in an
// HTML wrapper; otherwise ErrInvalidPDFPayload.
func ExtractPDF(body []byte, contentType string) ([]byte, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")

	if bytes.HasPrefix(trimmed, pdfMagic) {
		if len(trimmed) < MinPDFSize {
			return nil, fmt.Errorf("%w: %d bytes is below the plausible minimum", ErrInvalidPDFPayload, len(trimmed))
		}
		return trimmed, nil
	}

	if looksLikeHTML(trimmed, contentType) {
		if pdf := decodeEmbedded(trimmed); pdf != nil {
			if len(pdf) < MinPDFSize {
				return nil, fmt.Errorf("%w: embedded pdf is %d bytes", ErrInvalidPDFPayload, len(pdf))
			}
			return pdf, nil
		}
	}

	return nil, fmt.Errorf("%w: no pdf magic and no embedded base64 blob", ErrInvalidPDFPayload)
}

func looksLikeHTML(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	head := bytes.ToLower(body[:min(len(body), 256)])
	return bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype"))
}

func decodeEmbedded(body []byte) []byte {
	blob := base64PDFRe.Find(body)
	if blob == nil {
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(blob))
	if err != nil {
		// Trailing padding may be cut off by the HTML wrapper; retry
		// without it.
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(string(blob), "="))
		if err != nil {
			return nil
		}
	}

	return decoded
}
