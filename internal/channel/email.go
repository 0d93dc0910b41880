package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/mail"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// Mailer is the email transport.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html string) (string, error)
}

// EmailAdapter renders a notification as HTML mail. The endpoint URL holds
// the recipient address.
type EmailAdapter struct {
	mailer Mailer
	tmpl   *template.Template
}

type emailPayload struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="border-left: 4px solid #{{.Color}}; padding: 12px 16px;">
    <h2 style="margin-top: 0;">{{.Title}}</h2>
    <p>{{.Body}}</p>
    {{- if .Facts}}
    <table cellpadding="4">
      {{- range .Facts}}
      <tr><td><strong>{{.Name}}</strong></td><td>{{.Value}}</td></tr>
      {{- end}}
    </table>
    {{- end}}
    {{- range .Actions}}
    <p><a href="{{.URL}}" style="color: #{{$.Color}};">{{.Title}}</a></p>
    {{- end}}
  </div>
  <p style="font-size: 12px; color: #888;">Priority: {{.Priority}} | Sent {{.SentAt}}</p>
</body>
</html>
`))

func NewEmailAdapter(mailer Mailer) *EmailAdapter {
	return &EmailAdapter{mailer: mailer, tmpl: emailTemplate}
}

func (a *EmailAdapter) Channel() domain.ChannelType { return domain.ChannelEmail }

func (a *EmailAdapter) Validate(ep domain.Endpoint) error {
	if _, err := mail.ParseAddress(ep.URL); err != nil {
		return fmt.Errorf("%w: invalid email address %q", domain.ErrValidation, ep.URL)
	}
	return nil
}

func (a *EmailAdapter) BuildPayload(msg Message) ([]byte, error) {
	msg = renderMessage(msg)
	var buf bytes.Buffer
	err := a.tmpl.Execute(&buf, map[string]any{
		"Color":    ThemeColor(msg.Type),
		"Title":    msg.Title,
		"Body":     msg.Body,
		"Facts":    msg.Facts,
		"Actions":  cardActions(msg),
		"Priority": msg.Priority.String(),
		"SentAt":   msg.SentAt.UTC().Format("2006-01-02 15:04 UTC"),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering email: %w", err)
	}
	b, err := json.Marshal(emailPayload{Subject: msg.Title, HTML: buf.String()})
	if err != nil {
		return nil, fmt.Errorf("marshaling email payload: %w", err)
	}
	return b, nil
}

func (a *EmailAdapter) Send(ctx context.Context, ep domain.Endpoint, payload []byte) Result {
	var p emailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return failure(fmt.Errorf("decoding email payload: %w", err), false, 0, 0)
	}
	start := time.Now()
	id, err := a.mailer.SendEmail(ctx, ep.URL, p.Subject, p.HTML)
	latency := time.Since(start)
	if err != nil {
		return failure(fmt.Errorf("sending email: %w", err), false, 0, latency)
	}
	return Result{Success: true, MessageID: id, Latency: latency}
}
