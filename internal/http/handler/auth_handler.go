package handler

import (
	"net/http"
	"time"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/http/middleware"
	"github.com/nextest/portal-auth/internal/http/response"
	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/nextest/portal-auth/internal/service"
)

var errInvalidBody = apperr.Validation("INVALID_BODY", "Invalid request body")

type AuthHandler struct {
	login       service.LoginServiceInterface
	sessions    service.SessionManager
	cookies     *security.CookieManager
	debugErrors bool
}

// NewAuthHandler wires the login flow to HTTP. debugErrors adds error and
// stack to internal error envelopes and must be false in production.
func NewAuthHandler(login service.LoginServiceInterface, sessions service.SessionManager, cookies *security.CookieManager, debugErrors bool) *AuthHandler {
	return &AuthHandler{login: login, sessions: sessions, cookies: cookies, debugErrors: debugErrors}
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
	Warning   string    `json:"warning,omitempty"`
	DebugCode string    `json:"debugCode,omitempty"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type userResponse struct {
	Message string       `json:"message,omitempty"`
	User    *domain.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "auth.otp.issue", "", "invalid_body", errInvalidBody)
		return
	}
	res, err := h.login.RequestCode(r.Context(), service.RequestCodeInput{Email: req.Email})
	if err != nil {
		h.fail(w, r, "auth.otp.issue", req.Email, reasonFor(err), err)
		return
	}

	body := loginResponse{
		Message:   "Verification code sent",
		Email:     res.Email,
		ExpiresAt: res.ExpiresAt,
		DebugCode: res.DebugCode,
	}
	reason := "sent"
	if res.Warning != nil {
		body.Message = "Verification code generated"
		body.Warning = res.Warning.Public()
		reason = "delivery_failed"
	}
	observability.Audit(r, observability.AuditInput{
		EventName:  "auth.otp.issue",
		ActorEmail: res.Email,
		TargetType: "verification_code",
		TargetID:   res.Email,
		Action:     "issue",
		Outcome:    "success",
		Reason:     reason,
	})
	response.JSON(w, r, http.StatusOK, body)
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "auth.otp.verify", "", "invalid_body", errInvalidBody)
		return
	}
	res, err := h.login.VerifyCode(r.Context(), service.VerifyCodeInput{
		Email:    req.Email,
		Code:     req.Code,
		ClientIP: middleware.ClientIP(r),
	})
	if err != nil {
		h.fail(w, r, "auth.otp.verify", req.Email, reasonFor(err), err)
		return
	}

	in := observability.AuditInput{
		EventName:  "auth.otp.verify",
		ActorEmail: req.Email,
		TargetType: "session",
		Action:     "verify",
		Outcome:    "success",
		Reason:     "code_accepted",
	}
	if res.Session != nil {
		h.cookies.SetSession(w, res.Session.Token, res.Session.ExpiresAt())
		in.ActorUserID = res.Session.Session.UserID
		in.TargetID = res.Session.Session.ID
	} else {
		in.Reason = "user_missing"
	}
	observability.Audit(r, in)
	response.JSON(w, r, http.StatusOK, userResponse{Message: "Login successful", User: res.User})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	var userID string
	if grant, ok := middleware.SessionFromContext(r.Context()); ok {
		userID = grant.Session.UserID
	}
	user, err := h.login.CurrentUser(r.Context(), userID)
	if err != nil {
		observability.Audit(r, observability.AuditInput{
			EventName:   "auth.me",
			ActorUserID: userID,
			TargetType:  "user",
			TargetID:    userID,
			Action:      "read",
			Outcome:     "failure",
			Reason:      reasonFor(err),
		})
		response.Fail(w, r, err, h.debugErrors)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:   "auth.me",
		ActorUserID: userID,
		ActorEmail:  user.Email,
		TargetType:  "user",
		TargetID:    userID,
		Action:      "read",
		Outcome:     "success",
		Reason:      "session_valid",
	})
	response.JSON(w, r, http.StatusOK, userResponse{User: user})
}

// Logout destroys the server-side session and clears the cookie. It succeeds
// without a session so clients can always call it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.cookies.Read(r)
	if token != "" {
		if err := h.sessions.Destroy(r.Context(), token); err != nil {
			h.fail(w, r, "auth.logout", "", reasonFor(err), err)
			return
		}
	}
	h.cookies.Clear(w)
	reason := "session_destroyed"
	if token == "" {
		reason = "no_session"
	}
	observability.Audit(r, observability.AuditInput{
		EventName:  "auth.logout",
		TargetType: "session",
		Action:     "logout",
		Outcome:    "success",
		Reason:     reason,
	})
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, event, email, reason string, err error) {
	meta := auditTargets[event]
	observability.Audit(r, observability.AuditInput{
		EventName:  event,
		ActorEmail: email,
		TargetType: meta.targetType,
		TargetID:   email,
		Action:     meta.action,
		Outcome:    "failure",
		Reason:     reason,
	})
	response.Fail(w, r, err, h.debugErrors)
}

var auditTargets = map[string]struct{ targetType, action string }{
	"auth.otp.issue":  {"verification_code", "issue"},
	"auth.otp.verify": {"session", "verify"},
	"auth.logout":     {"session", "logout"},
}

// reasonFor turns an error into a low-cardinality audit reason.
func reasonFor(err error) string {
	ae := apperr.As(err)
	if ae.Code != "" {
		return ae.Code
	}
	return string(ae.Kind)
}
