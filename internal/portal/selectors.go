package portal

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Selector fallback chains. The portal ships no stable markup contract;
// each DOM interaction tries these candidates in order and takes the
// first match. Exhausting a chain is a hard failure for that step.
var (
	loginFormSelectors = []string{
		"form#formAcceso",
		"form#loginForm",
		"form[name='login']",
		"form[action*='acceso']",
		"form[action*='login']",
		"form",
	}

	emailInputSelectors = []string{
		"input[name='correo']",
		"input[name='email']",
		"input[type='email']",
	}

	passwordInputSelectors = []string{
		"input[name='contrasena']",
		"input[name='password']",
		"input[type='password']",
	}

	keyFileInputSelectors = []string{
		"input[name='archivoLlave']",
		"input[name='keyFile']",
		"input[type='file'][name*='llave']",
		"input[type='file'][name*='key']",
	}

	certFileInputSelectors = []string{
		"input[name='archivoCertificado']",
		"input[name='certFile']",
		"input[type='file'][name*='cert']",
	}

	authErrorSelectors = []string{
		"#mensajeError",
		".alert-danger",
		".login-error",
		".mensaje-error",
	}

	loggedInSelectors = []string{
		"a[href*='cerrarSesion']",
		"a[href*='logout']",
		"#panelNotificaciones",
		".usuario-sesion",
	}

	documentRowSelectors = []string{
		"table#tablaNotificaciones tbody tr",
		"table.tabla-notificaciones tbody tr",
		"table tbody tr",
	}
)

// firstMatch tries each selector in order against the document and
// returns the first non-empty selection along with the selector that
// matched.
func firstMatch(doc *goquery.Document, candidates []string) (*goquery.Selection, string, error) {
	for _, selector := range candidates {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			return sel.First(), selector, nil
		}
	}
	return nil, "", fmt.Errorf("%w: tried %d selectors", ErrSelectorExhausted, len(candidates))
}

// inputName resolves the name attribute of the first matching input
// within scope. Candidates whose match carries no name are skipped.
func inputName(scope *goquery.Selection, candidates []string) (string, error) {
	for _, selector := range candidates {
		sel := scope.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		if name := sel.First().AttrOr("name", ""); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no named input among %d selectors", ErrSelectorExhausted, len(candidates))
}

// rowMatch is firstMatch for repeated elements: it returns the full
// selection rather than just the first node.
func rowMatch(doc *goquery.Document, candidates []string) *goquery.Selection {
	for _, selector := range candidates {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			return sel
		}
	}
	return nil
}
