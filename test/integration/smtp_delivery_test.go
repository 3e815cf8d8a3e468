package integration

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/nextest/portal-auth/internal/config"
	"github.com/nextest/portal-auth/internal/service"
)

func TestLoginCodeDeliveredOverSMTP(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	mailpit := newMailpitIntegrationEnv(t)

	smtpCfg := &config.Config{
		SMTPHost: mailpit.smtpHost,
		SMTPPort: mailpit.smtpPort,
		SMTPFrom: "Nextest Portal <no-reply@nextest.com.br>",
	}
	env := newPortalTestServer(t, portalServerOptions{mailer: service.NewSMTPMailer(smtpCfg)})
	env.provision(t, "ana@nextest.com.br", "Ana", true)

	resp, body := doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/auth/login", map[string]string{"email": "ana@nextest.com.br"})
	if resp.StatusCode != http.StatusOK || body["message"] != "Verification code sent" {
		t.Fatalf("login status=%d body=%v", resp.StatusCode, body)
	}

	msg := mailpit.waitForMessage(t, "ana@nextest.com.br")
	if msg.Subject != service.LoginCodeSubject {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	code := extractCode(mailpit.messageHTML(t, msg.ID))
	if code == "" {
		t.Fatal("no six digit code in mailed body")
	}

	resp, body = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/auth/verify", map[string]string{"email": "ana@nextest.com.br", "code": code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify with mailed code status=%d body=%v", resp.StatusCode, body)
	}
}

func TestLoginSurvivesSMTPOutage(t *testing.T) {
	smtpCfg := &config.Config{SMTPHost: "127.0.0.1", SMTPPort: 1, SMTPFrom: "no-reply@nextest.com.br"}
	env := newPortalTestServer(t, portalServerOptions{mailer: service.NewSMTPMailer(smtpCfg)})
	env.provision(t, "ana@nextest.com.br", "Ana", true)

	resp, body := doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/auth/login", map[string]string{"email": "ana@nextest.com.br"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d body=%v", resp.StatusCode, body)
	}
	if body["message"] != "Verification code generated" || body["warning"] == nil {
		t.Fatalf("expected delivery warning, got %v", body)
	}
	code, _ := body["debugCode"].(string)
	if len(code) != 6 {
		t.Fatalf("expected debug code outside production, got %v", body["debugCode"])
	}

	resp, body = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/auth/verify", map[string]string{"email": "ana@nextest.com.br", "code": code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify with debug code status=%d body=%v", resp.StatusCode, body)
	}
}

var mailedCodePattern = regexp.MustCompile(`>\s*(\d{6})\s*<`)

func extractCode(html string) string {
	m := mailedCodePattern.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return m[1]
}
