// Package portal drives an authenticated session against the court
// e-filing portal: certificate login, navigation, and extraction of
// the case-document list from rendered HTML. The portal is uncontrolled
// third-party surface; every selector here is a fallback chain, and
// every fatal error carries a page capture for post-mortem diagnosis.
package portal

import (
	"errors"
	"fmt"
)

// Errors in the portal taxonomy. All are fatal to the sync run.
var (
	// ErrSelectorExhausted means every selector candidate for a DOM
	// interaction step failed to match — the portal markup drifted.
	ErrSelectorExhausted = errors.New("selector candidates exhausted")

	// ErrNavigationTimeout means the portal could not be reached or
	// did not answer within the step deadline.
	ErrNavigationTimeout = errors.New("portal navigation timeout")

	// ErrAuthRejected means the portal explicitly rejected the login.
	// The credential is flipped to failed so a human can re-validate
	// instead of the scheduler retrying blindly.
	ErrAuthRejected = errors.New("portal rejected authentication")
)

// Step names recorded on fatal errors, so operators can see how far
// the session got.
const (
	StepNavigateLogin = "navigate_login"
	StepSubmitLogin   = "submit_login"
	StepAwaitResult   = "await_result"
	StepNavigateList  = "navigate_documents_list"
	StepExtract       = "extract_documents"
)

// StepError wraps a fatal scrape error with the failing step, the page
// URL, and the diagnostic page capture taken before teardown. The
// capture is the only evidence left once the session is gone.
type StepError struct {
	Step        string
	URL         string
	CapturePath string
	Err         error
}

func (e *StepError) Error() string {
	if e.CapturePath != "" {
		return fmt.Sprintf("portal %s: %v (capture: %s)", e.Step, e.Err, e.CapturePath)
	}
	return fmt.Sprintf("portal %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
