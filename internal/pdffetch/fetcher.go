package pdffetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lexwatch/tribsync/internal/config"
	"github.com/lexwatch/tribsync/internal/domain"
	"github.com/lexwatch/tribsync/internal/logger"
)

// Session is the authenticated portal surface the fetcher rides: the
// logged-in HTTP client and URL resolution against the portal base.
type Session interface {
	Client() *http.Client
	Resolve(path string) string
}

// ErrNotDownloadable is returned when the portal classifies a document
// as something other than an electronic notification. It is a
// short-circuit, not a failure: the document proceeds through the
// pipeline without a PDF.
var ErrNotDownloadable = errors.New("document not downloadable")

const maxDownloadSize = 50 << 20

// Fetcher resolves and downloads PDFs through the portal's internal
// AJAX surface, riding the authenticated session's cookies. Two-phase:
// classify the notification type, then resolve a short-lived process
// token used to build the direct download URL.
type Fetcher struct {
	cfg config.Portal
	log logger.Interface
}

// NewFetcher creates a PDF fetcher.
func NewFetcher(cfg config.Portal, log logger.Interface) *Fetcher {
	return &Fetcher{cfg: cfg, log: log}
}

// Fetch downloads one document's PDF bytes. Returns ErrNotDownloadable
// when the classification is ineligible and ErrInvalidPDFPayload when
// the blob endpoint answered garbage.
func (f *Fetcher) Fetch(ctx context.Context, sess Session, doc *domain.DocumentRecord) ([]byte, error) {
	class, err := f.classify(ctx, sess, doc)
	if err != nil {
		return nil, fmt.Errorf("classify notification: %w", err)
	}
	if class != f.cfg.EligibleClass {
		return nil, fmt.Errorf("%w: classification %q", ErrNotDownloadable, class)
	}

	token, err := f.resolveToken(ctx, sess, doc)
	if err != nil {
		return nil, fmt.Errorf("resolve process token: %w", err)
	}

	body, contentType, err := f.download(ctx, sess, token)
	if err != nil {
		return nil, fmt.Errorf("download blob: %w", err)
	}

	pdf, err := ExtractPDF(body, contentType)
	if err != nil {
		return nil, err
	}

	return pdf, nil
}

// classify asks the portal for the document's notification type.
func (f *Fetcher) classify(ctx context.Context, sess Session, doc *domain.DocumentRecord) (string, error) {
	body, err := f.postForm(ctx, sess, f.cfg.ValidatePath, doc)
	if err != nil {
		return "", err
	}
	return ajaxValue(body, "tipo"), nil
}

// resolveToken fetches the short-lived token for the direct download
// URL.
func (f *Fetcher) resolveToken(ctx context.Context, sess Session, doc *domain.DocumentRecord) (string, error) {
	body, err := f.postForm(ctx, sess, f.cfg.TokenPath, doc)
	if err != nil {
		return "", err
	}

	token := ajaxValue(body, "token")
	if token == "" {
		return "", errors.New("portal returned an empty token")
	}
	return token, nil
}

// postForm posts the document's identifying fields to one of the AJAX
// endpoints and returns the raw response body.
func (f *Fetcher) postForm(ctx context.Context, sess Session, path string, doc *domain.DocumentRecord) ([]byte, error) {
	form := url.Values{
		"expediente": {doc.Expediente},
		"numero":     {strconv.FormatInt(doc.Numero, 10)},
	}
	if doc.DownloadRef != "" {
		form.Set("proceso", doc.DownloadRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.Resolve(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := sess.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal answered %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
}

// download fetches the blob behind the resolved token. Sniffing is the
// caller's job; this just moves bytes.
func (f *Fetcher) download(ctx context.Context, sess Session, token string) ([]byte, string, error) {
	target := sess.Resolve(f.cfg.DownloadPath)
	u, err := url.Parse(target)
	if err != nil {
		return nil, "", fmt.Errorf("parse download URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := sess.Client().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("portal answered %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, "", err
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// ajaxValue extracts a field from an AJAX response. The portal answers
// JSON on current revisions and a bare string on older ones; both are
// accepted.
func ajaxValue(body []byte, field string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if v, ok := payload[field].(string); ok {
			return strings.TrimSpace(v)
		}
		if v, ok := payload[field].(float64); ok {
			return strconv.FormatInt(int64(v), 10)
		}
		return ""
	}
	return strings.Trim(strings.TrimSpace(string(body)), `"`)
}
