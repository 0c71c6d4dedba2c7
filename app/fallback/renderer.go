// Package fallback renders the self-submitting HTML form used when a provider
// could not hand back a redirect URL.
package fallback

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
)

const DefaultRedirectDelay = 1500 * time.Millisecond

var (
	ErrMissingPayerIdentity = errors.New("payer email is required for the hosted payment form")
	ErrNoHostedPage         = errors.New("provider has no hosted payment page configured")
)

var formTemplate = template.Must(template.New("fallback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Redirecting to payment</title>
</head>
<body>
<p id="payment-redirect-status">Redirecting you to the secure payment page&hellip;</p>
<form id="payment-redirect-form" method="POST" action="{{.Action}}" data-delay="{{.DelayMillis}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
<script>
(function () {
  var form = document.getElementById("payment-redirect-form");
  setTimeout(function () { form.submit(); }, parseInt(form.getAttribute("data-delay"), 10) || 0);
})();
</script>
</body>
</html>
`))

type Document struct {
	Action string
	Fields []provider.FormField
	HTML   string
}

type Renderer struct {
	delay time.Duration
}

func NewRenderer(delay time.Duration) *Renderer {
	if delay < 0 {
		delay = DefaultRedirectDelay
	}
	return &Renderer{delay: delay}
}

// Render builds the form for order from the provider's hosted form description.
// The same inputs always produce byte-identical HTML.
func (r *Renderer) Render(order *entity.Order, form provider.HostedForm) (*Document, error) {
	if order == nil || strings.TrimSpace(order.Intent.Payer.Email) == "" {
		return nil, ErrMissingPayerIdentity
	}
	if strings.TrimSpace(form.Action) == "" {
		return nil, ErrNoHostedPage
	}

	var buf bytes.Buffer
	err := formTemplate.Execute(&buf, struct {
		Action      string
		Fields      []provider.FormField
		DelayMillis int64
	}{
		Action:      form.Action,
		Fields:      form.Fields,
		DelayMillis: r.delay.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	return &Document{
		Action: form.Action,
		Fields: form.Fields,
		HTML:   buf.String(),
	}, nil
}
