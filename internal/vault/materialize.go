package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lexwatch/tribsync/internal/domain"
)

// Materialized holds one user's secrets prepared for a scrape: the
// password in memory, the key and certificate written to a private
// temp directory. Cleanup must be called on every exit path; the
// orchestrator defers it immediately after a successful Materialize.
type Materialized struct {
	Email    string
	Password string
	KeyPath  string
	CertPath string

	dir string
}

// Cleanup erases the temp credential files. Safe to call more than
// once and on a nil receiver.
func (m *Materialized) Cleanup() {
	if m == nil || m.dir == "" {
		return
	}
	os.RemoveAll(m.dir)
	m.dir = ""
}

// Materialize fetches the three secrets for a credential as three
// independent vault calls and writes the key and certificate files to
// a temp directory. If any fetch fails, nothing is materialized and
// the run must abort before a portal session is opened.
func (c *Client) Materialize(ctx context.Context, cred *domain.Credential) (*Materialized, error) {
	password, err := c.GetSecret(ctx, cred.PasswordRef)
	if err != nil {
		return nil, fmt.Errorf("fetch password secret: %w", err)
	}

	keyData, err := c.GetSecret(ctx, cred.KeyFileRef)
	if err != nil {
		return nil, fmt.Errorf("fetch key file secret: %w", err)
	}

	certData, err := c.GetSecret(ctx, cred.CertFileRef)
	if err != nil {
		return nil, fmt.Errorf("fetch cert file secret: %w", err)
	}

	dir, err := os.MkdirTemp("", "tribsync-cred-")
	if err != nil {
		return nil, fmt.Errorf("create credential temp dir: %w", err)
	}

	m := &Materialized{
		Email:    cred.Email,
		Password: string(password),
		KeyPath:  filepath.Join(dir, "key.key"),
		CertPath: filepath.Join(dir, "cert.cer"),
		dir:      dir,
	}

	if err := os.WriteFile(m.KeyPath, keyData, 0o600); err != nil {
		m.Cleanup()
		return nil, fmt.Errorf("write key file: %w", err)
	}
	if err := os.WriteFile(m.CertPath, certData, 0o600); err != nil {
		m.Cleanup()
		return nil, fmt.Errorf("write cert file: %w", err)
	}

	return m, nil
}
