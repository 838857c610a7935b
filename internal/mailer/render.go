package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

var confirmEmailTemplate = template.Must(template.New("confirm_email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background: #f4f4f4; padding: 24px;">
  <div style="max-width: 480px; margin: auto; background: #ffffff; border-radius: 8px; padding: 24px;">
    <h2>{{.Subject}}</h2>
    <p>Hi {{if .Username}}{{.Username}}{{else}}there{{end}},</p>
    <p>Use the code below to confirm your account:</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
    <p>If you did not sign up, you can ignore this email.</p>
  </div>
</body>
</html>`))

// Render builds the Message for t.
func Render(t Task) (Message, error) {
	if err := t.Validate(); err != nil {
		return Message{}, err
	}
	switch t.Kind {
	case KindConfirmEmail:
		const subject = "Confirm Your Email"
		var buf bytes.Buffer
		err := confirmEmailTemplate.Execute(&buf, struct {
			Subject, Username, Code string
		}{subject, t.Username, t.Code})
		if err != nil {
			return Message{}, err
		}
		return Message{To: t.To, Subject: subject, HTML: buf.String()}, nil
	}
	return Message{}, fmt.Errorf("mailer: no template for %q", t.Kind)
}
