package portal_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexwatch/tribsync/internal/config"
	"github.com/lexwatch/tribsync/internal/logger"
	"github.com/lexwatch/tribsync/internal/portal"
	"github.com/lexwatch/tribsync/internal/vault"
)

const loginPage = `
<html><body>
<form id="formAcceso" action="/acceso" method="post" enctype="multipart/form-data">
  <input type="hidden" name="__token" value="abc123">
  <input type="email" name="correo">
  <input type="password" name="contrasena">
  <input type="file" name="archivoLlave">
  <input type="file" name="archivoCertificado">
</form>
</body></html>`

const loggedInPage = `
<html><body>
<a href="/cerrarSesion">Cerrar sesión</a>
</body></html>`

const authErrorPage = `
<html><body>
<div id="mensajeError">Contraseña o certificado incorrecto</div>
</body></html>`

const documentsPage = `
<html><body>
<table id="tablaNotificaciones"><tbody>
<tr><td>21</td><td>55/2025</td><td>Juzgado Civil</td><td>20/03/2025</td><td>Culiacán</td><td>Auto</td><td>0</td></tr>
<tr><td>20</td><td>54/2025</td><td>Juzgado Civil</td><td>19/03/2025</td><td>Culiacán</td><td>Acuerdo</td><td>1</td></tr>
</tbody></table>
</body></html>`

// testCreds writes throwaway key and certificate files and returns the
// materialized bundle the scraper expects.
func testCreds(t *testing.T) *vault.Materialized {
	t.Helper()
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "user.key")
	certPath := filepath.Join(dir, "user.cer")
	require.NoError(t, os.WriteFile(keyPath, []byte("key-bytes"), 0o600))
	require.NoError(t, os.WriteFile(certPath, []byte("cert-bytes"), 0o600))

	return &vault.Materialized{
		Email:    "abogado@example.com",
		Password: "s3cret",
		KeyPath:  keyPath,
		CertPath: certPath,
	}
}

func testPortalConfig(baseURL, diagnostics string) config.Portal {
	return config.Portal{
		BaseURL:        baseURL,
		LoginPath:      "/",
		DocumentsPath:  "/notificaciones",
		Timeout:        5 * time.Second,
		DiagnosticsDir: diagnostics,
	}
}

func TestScraper_Run(t *testing.T) {
	type loginSubmission struct {
		email, password, token string
		keySize, certSize      int
	}
	var got loginSubmission

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/acceso", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got.email = r.FormValue("correo")
		got.password = r.FormValue("contrasena")
		got.token = r.FormValue("__token")
		if f, header, err := r.FormFile("archivoLlave"); err == nil {
			got.keySize = int(header.Size)
			f.Close()
		}
		if f, header, err := r.FormFile("archivoCertificado"); err == nil {
			got.certSize = int(header.Size)
			f.Close()
		}
		http.SetCookie(w, &http.Cookie{Name: "sesion", Value: "tok"})
		fmt.Fprint(w, loggedInPage)
	})
	mux.HandleFunc("/notificaciones", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if c, err := r.Cookie("sesion"); err != nil || c.Value != "tok" {
			http.Error(w, "sin sesión", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, documentsPage)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	scraper := portal.NewScraper(testPortalConfig(server.URL, ""), logger.NewNoOp())
	sess, err := scraper.Run(context.Background(), testCreds(t))
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, "abogado@example.com", got.email)
	assert.Equal(t, "s3cret", got.password)
	assert.Equal(t, "abc123", got.token, "hidden form fields must be carried through")
	assert.Equal(t, len("key-bytes"), got.keySize)
	assert.Equal(t, len("cert-bytes"), got.certSize)

	docs := sess.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, int64(20), docs[0].Numero)
	assert.Equal(t, int64(21), docs[1].Numero)
}

func TestScraper_Run_AuthRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/acceso", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, authErrorPage)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	scraper := portal.NewScraper(testPortalConfig(server.URL, ""), logger.NewNoOp())
	sess, err := scraper.Run(context.Background(), testCreds(t))
	require.Nil(t, sess)
	require.ErrorIs(t, err, portal.ErrAuthRejected)

	var stepErr *portal.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, portal.StepAwaitResult, stepErr.Step)
	assert.Contains(t, err.Error(), "Contraseña o certificado incorrecto")
}

func TestScraper_Run_SelectorExhaustedTakesCapture(t *testing.T) {
	// A login page with no form at all: the selector chain runs dry and
	// a diagnostic capture of the page must land on disk.
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "<html><body><p>Portal en mantenimiento</p></body></html>")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	diagnostics := t.TempDir()
	scraper := portal.NewScraper(testPortalConfig(server.URL, diagnostics), logger.NewNoOp())
	sess, err := scraper.Run(context.Background(), testCreds(t))
	require.Nil(t, sess)
	require.ErrorIs(t, err, portal.ErrSelectorExhausted)

	var stepErr *portal.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, portal.StepNavigateLogin, stepErr.Step)
	require.NotEmpty(t, stepErr.CapturePath)

	captured, readErr := os.ReadFile(stepErr.CapturePath)
	require.NoError(t, readErr)
	assert.Contains(t, string(captured), "mantenimiento")
	// Capture names carry a hash of the email, never the email itself.
	assert.NotContains(t, filepath.Base(stepErr.CapturePath), "abogado")
}

func TestCapture_DisabledDir(t *testing.T) {
	path, err := portal.NewCapture("").Save("user@example.com", "step", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Empty(t, path)
}
