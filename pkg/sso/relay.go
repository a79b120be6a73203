package sso

import (
	"fmt"
	"html/template"
	"net/http"
)

// relayFormTemplate re-posts a SAML response to the broker's assertion
// consumer service. The form auto-submits; the noscript button covers
// browsers with scripting disabled. html/template escaping keeps the
// base64 payload and RelayState inert in the page.
var relayFormTemplate = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html>
<head><title>Signing in...</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.ACSURL}}">
<input type="hidden" name="SAMLResponse" value="{{.SAMLResponse}}"/>
{{if .RelayState}}<input type="hidden" name="RelayState" value="{{.RelayState}}"/>{{end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

type relayFormData struct {
	ACSURL       string
	SAMLResponse string
	RelayState   string
}

// WriteRelayForm renders the self-submitting form that forwards a SAML
// callback to the broker's ACS. The SAMLResponse and RelayState values
// are carried byte for byte; nothing is decoded or validated locally.
func WriteRelayForm(w http.ResponseWriter, acsURL, samlResponse, relayState string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	err := relayFormTemplate.Execute(w, relayFormData{
		ACSURL:       acsURL,
		SAMLResponse: samlResponse,
		RelayState:   relayState,
	})
	if err != nil {
		return fmt.Errorf("failed to render relay form: %w", err)
	}
	return nil
}
