package portal

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/lexwatch/tribsync/internal/domain"
)

// Session is the authenticated portal session: one cookie jar, one
// HTTP client, and the document list extracted during the scrape. It
// is a single stateful resource — document downloads reuse its cookies
// and must run sequentially. The PDF fetcher receives the session by
// reference; it never re-logs-in per document.
type Session struct {
	client *http.Client
	base   *url.URL
	docs   []domain.DocumentRecord
}

// newSession builds an unauthenticated session against the portal base
// URL.
func newSession(base *url.URL, timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Session{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		base: base,
	}, nil
}

// Documents returns the scraped document records, sorted ascending by
// numero.
func (s *Session) Documents() []domain.DocumentRecord {
	if s == nil {
		return nil
	}
	return s.docs
}

// Client exposes the session's HTTP client so the PDF fetcher can ride
// the authenticated cookies.
func (s *Session) Client() *http.Client {
	return s.client
}

// Resolve turns a portal-relative path into an absolute URL.
func (s *Session) Resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return s.base.String() + path
	}
	return s.base.ResolveReference(ref).String()
}

// Close releases the session. Safe on a nil receiver so callers can
// defer it unconditionally.
func (s *Session) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.CloseIdleConnections()
}
