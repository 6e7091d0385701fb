package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lexwatch/tribsync/internal/config"
	"github.com/lexwatch/tribsync/internal/logger"
	"github.com/lexwatch/tribsync/internal/vault"
)

const (
	maxPageSize    = 5 << 20
	navAttempts    = 3
	navRetryDelay  = 2 * time.Second
	defaultNavWait = 30 * time.Second
)

// Scraper drives the login and extraction flow:
//
//	NavigateLogin → FillCredentials/UploadCertFiles → SubmitLogin →
//	AwaitResult → NavigateDocumentsList → ExtractDocuments
//
// Each DOM step walks a selector fallback chain; any fatal error takes
// a page capture before the session is torn down.
type Scraper struct {
	cfg     config.Portal
	capture *Capture
	log     logger.Interface
}

// NewScraper creates a portal scraper.
func NewScraper(cfg config.Portal, log logger.Interface) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultNavWait
	}
	return &Scraper{
		cfg:     cfg,
		capture: NewCapture(cfg.DiagnosticsDir),
		log:     log,
	}
}

// loginForm is the parsed shape of the portal's login form.
type loginForm struct {
	action        string
	emailField    string
	passwordField string
	keyField      string
	certField     string
	hidden        map[string]string
}

// Run executes the full scrape for one user and returns the
// authenticated session, its document list already extracted and
// sorted. The caller owns the session and must Close it.
func (s *Scraper) Run(ctx context.Context, creds *vault.Materialized) (*Session, error) {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal base URL: %w", err)
	}

	sess, err := newSession(base, s.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("create portal session: %w", err)
	}

	log := s.log.With("portal", base.Host)

	loginDoc, loginBody, loginURL, err := s.navGet(ctx, sess, s.cfg.LoginPath)
	if err != nil {
		sess.Close()
		return nil, s.fail(creds.Email, StepNavigateLogin, loginURL, loginBody, err)
	}

	form, err := s.parseLoginForm(loginDoc, loginURL)
	if err != nil {
		sess.Close()
		return nil, s.fail(creds.Email, StepNavigateLogin, loginURL, loginBody, err)
	}

	s.pause(ctx)

	resultDoc, resultBody, resultURL, err := s.submitLogin(ctx, sess, form, creds)
	if err != nil {
		sess.Close()
		return nil, s.fail(creds.Email, StepSubmitLogin, resultURL, resultBody, err)
	}

	if err := checkLoginResult(resultDoc); err != nil {
		sess.Close()
		return nil, s.fail(creds.Email, StepAwaitResult, resultURL, resultBody, err)
	}
	log.Debug("portal login accepted")

	s.pause(ctx)

	listDoc, listBody, listURL, err := s.navGet(ctx, sess, s.cfg.DocumentsPath)
	if err != nil {
		sess.Close()
		return nil, s.fail(creds.Email, StepNavigateList, listURL, listBody, err)
	}

	sess.docs = extractDocuments(listDoc)
	log.Info("documents extracted", "count", len(sess.docs))

	return sess, nil
}

// navGet fetches a portal page, retrying transport failures. Exhausted
// retries surface as ErrNavigationTimeout.
func (s *Scraper) navGet(ctx context.Context, sess *Session, path string) (*goquery.Document, []byte, string, error) {
	target := sess.Resolve(path)

	var lastErr error
	for attempt := 0; attempt < navAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, target, fmt.Errorf("%w: %w", ErrNavigationTimeout, ctx.Err())
			case <-time.After(navRetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
		if err != nil {
			return nil, nil, target, fmt.Errorf("build request: %w", err)
		}

		doc, body, err := s.doPage(sess, req)
		if err == nil {
			return doc, body, target, nil
		}
		lastErr = err
	}

	return nil, nil, target, fmt.Errorf("%w: %w", ErrNavigationTimeout, lastErr)
}

// doPage executes one request and parses the HTML response.
func (s *Scraper) doPage(sess *Session, req *http.Request) (*goquery.Document, []byte, error) {
	resp, err := sess.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, body, fmt.Errorf("portal answered %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, body, fmt.Errorf("parse page: %w", err)
	}

	return doc, body, nil
}

// parseLoginForm resolves the login form and its field names through
// the selector fallback chains. The email field is optional — some
// portal revisions derive the account from the certificate — but
// password, key, and certificate inputs are required.
func (s *Scraper) parseLoginForm(doc *goquery.Document, pageURL string) (*loginForm, error) {
	formSel, matched, err := firstMatch(doc, loginFormSelectors)
	if err != nil {
		return nil, fmt.Errorf("locate login form: %w", err)
	}
	s.log.Debug("login form located", "selector", matched)

	form := &loginForm{hidden: make(map[string]string)}

	form.passwordField, err = inputName(formSel, passwordInputSelectors)
	if err != nil {
		return nil, fmt.Errorf("locate password input: %w", err)
	}
	form.keyField, err = inputName(formSel, keyFileInputSelectors)
	if err != nil {
		return nil, fmt.Errorf("locate key file input: %w", err)
	}
	form.certField, err = inputName(formSel, certFileInputSelectors)
	if err != nil {
		return nil, fmt.Errorf("locate cert file input: %w", err)
	}
	if name, emailErr := inputName(formSel, emailInputSelectors); emailErr == nil {
		form.emailField = name
	}

	formSel.Find("input[type='hidden']").Each(func(_ int, input *goquery.Selection) {
		if name := input.AttrOr("name", ""); name != "" {
			form.hidden[name] = input.AttrOr("value", "")
		}
	})

	action := form.resolveAction(formSel.AttrOr("action", ""), pageURL)
	form.action = action

	return form, nil
}

func (f *loginForm) resolveAction(action, pageURL string) string {
	if action == "" {
		return pageURL
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return action
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return page.ResolveReference(ref).String()
}

// submitLogin posts the credentials and certificate files as one
// multipart form, carrying any hidden fields the portal planted.
func (s *Scraper) submitLogin(ctx context.Context, sess *Session, form *loginForm, creds *vault.Materialized) (*goquery.Document, []byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for name, value := range form.hidden {
		if err := writer.WriteField(name, value); err != nil {
			return nil, nil, form.action, fmt.Errorf("write form field: %w", err)
		}
	}
	if form.emailField != "" {
		if err := writer.WriteField(form.emailField, creds.Email); err != nil {
			return nil, nil, form.action, fmt.Errorf("write email field: %w", err)
		}
	}
	if err := writer.WriteField(form.passwordField, creds.Password); err != nil {
		return nil, nil, form.action, fmt.Errorf("write password field: %w", err)
	}
	if err := attachFile(writer, form.keyField, creds.KeyPath); err != nil {
		return nil, nil, form.action, err
	}
	if err := attachFile(writer, form.certField, creds.CertPath); err != nil {
		return nil, nil, form.action, err
	}
	if err := writer.Close(); err != nil {
		return nil, nil, form.action, fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, form.action, &buf)
	if err != nil {
		return nil, nil, form.action, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	doc, body, err := s.doPage(sess, req)
	if err != nil {
		return nil, body, form.action, fmt.Errorf("%w: %w", ErrNavigationTimeout, err)
	}

	return doc, body, form.action, nil
}

func attachFile(writer *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open credential file: %w", err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy credential file: %w", err)
	}

	return nil
}

// checkLoginResult inspects the post-login page. An error banner means
// the portal rejected the credentials; a logged-in marker means
// success; neither means the markup drifted.
func checkLoginResult(doc *goquery.Document) error {
	for _, selector := range authErrorSelectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(sel.First().Text()); text != "" {
			return fmt.Errorf("%w: %s", ErrAuthRejected, text)
		}
	}

	for _, selector := range loggedInSelectors {
		if doc.Find(selector).Length() > 0 {
			return nil
		}
	}

	return fmt.Errorf("%w: no login outcome marker found", ErrSelectorExhausted)
}

// pause sleeps a randomized interval between portal actions. The
// portal is sensitive to rapid sequential requests.
func (s *Scraper) pause(ctx context.Context) {
	minDelay, maxDelay := s.cfg.MinDelay, s.cfg.MaxDelay
	if minDelay <= 0 {
		return
	}

	d := minDelay
	if maxDelay > minDelay {
		d = minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)))
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// fail takes a diagnostic capture and wraps the error with step
// context. Capture failures are logged but never mask the original
// error.
func (s *Scraper) fail(email, step, pageURL string, page []byte, err error) error {
	capturePath, capErr := s.capture.Save(email, step, page)
	if capErr != nil {
		s.log.Warn("page capture failed", "step", step, "error", capErr)
	}

	return &StepError{
		Step:        step,
		URL:         pageURL,
		CapturePath: capturePath,
		Err:         err,
	}
}
