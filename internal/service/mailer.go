package service

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"time"
)

const LoginCodeSubject = "Seu codigo de acesso"

//go:embed templates/login_code.html
var loginCodeTemplateText string

var loginCodeTemplate = template.Must(template.New("login_code").Parse(loginCodeTemplateText))

type LoginCodeMessage struct {
	To        string
	Name      string
	Code      string
	ExpiresAt time.Time
	TTL       time.Duration
}

// RenderLoginCodeBody renders the HTML body with the code and its validity.
func RenderLoginCodeBody(msg LoginCodeMessage) (string, error) {
	minutes := int(msg.TTL.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	var buf bytes.Buffer
	err := loginCodeTemplate.Execute(&buf, struct {
		Name         string
		Code         string
		ValidMinutes int
	}{msg.Name, msg.Code, minutes})
	if err != nil {
		return "", fmt.Errorf("render login code email: %w", err)
	}
	return buf.String(), nil
}

// DeliveryWarning reports that the code was stored but the email was not
// sent. Issuance still succeeds; the handler decides what to expose.
type DeliveryWarning struct {
	Transport string
	Err       error
}

func (w *DeliveryWarning) Error() string {
	return fmt.Sprintf("login code delivery via %s failed: %v", w.Transport, w.Err)
}

func (w *DeliveryWarning) Unwrap() error { return w.Err }

// Public is the text safe to return to the caller.
func (w *DeliveryWarning) Public() string {
	return "The code was generated but the email could not be sent. Try again in a few minutes."
}
