package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/config"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/repository"
	"github.com/nextest/portal-auth/internal/validate"
)

type RequestCodeInput struct {
	Email string `json:"email" validate:"required,max=255"`
}

type VerifyCodeInput struct {
	Email    string `json:"email" validate:"required,max=255"`
	Code     string `json:"code" validate:"required,otpcode"`
	ClientIP string `json:"-"`
}

// IssueResult is a successful issuance. Warning is set when the email could
// not be delivered; DebugCode only outside production.
type IssueResult struct {
	Email     string
	ExpiresAt time.Time
	Warning   *DeliveryWarning
	DebugCode string
}

// VerifyResult carries the user and its new session. Both are nil when the
// code matched but the user row is gone.
type VerifyResult struct {
	User    *domain.User
	Session *SessionGrant
}

type LoginPolicy struct {
	AllowedDomain   string
	CodeTTL         time.Duration
	SingleActive    bool
	Production      bool
	ExposeDebugCode bool
}

func LoginPolicyFromConfig(cfg *config.Config) LoginPolicy {
	return LoginPolicy{
		AllowedDomain:   strings.ToLower(cfg.AllowedEmailDomain),
		CodeTTL:         cfg.OTPTTL,
		SingleActive:    cfg.OTPSingleActive,
		Production:      cfg.IsProduction(),
		ExposeDebugCode: cfg.OTPDebugExposeCode,
	}
}

type LoginService struct {
	policy   LoginPolicy
	users    repository.UserRepository
	codes    repository.VerificationCodeRepository
	mailer   Mailer
	sessions SessionManager
	guard    AuthAbuseGuard
	generate CodeGenerator
	now      func() time.Time
	logger   *slog.Logger
}

func NewLoginService(
	policy LoginPolicy,
	users repository.UserRepository,
	codes repository.VerificationCodeRepository,
	mailer Mailer,
	sessions SessionManager,
	guard AuthAbuseGuard,
	logger *slog.Logger,
) *LoginService {
	if guard == nil {
		guard = NoopAuthAbuseGuard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginService{
		policy:   policy,
		users:    users,
		codes:    codes,
		mailer:   mailer,
		sessions: sessions,
		guard:    guard,
		generate: GenerateCode,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *LoginService) RequestCode(ctx context.Context, in RequestCodeInput) (res *IssueResult, err error) {
	ctx, span := observability.StartSpan(ctx, "LoginService.RequestCode")
	defer func() { observability.EndSpan(span, err) }()

	in.Email = NormalizeEmail(in.Email)
	if err := s.checkEmail(in); err != nil {
		observability.RecordOTPIssue(ctx, "invalid_email")
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordOTPIssue(ctx, "user_not_found")
		return nil, ErrUserNotFound.With("email", in.Email).With("suggestRegistration", true)
	}
	if err != nil {
		observability.RecordOTPIssue(ctx, "error")
		return nil, apperr.FromStore(err)
	}
	if !user.Active {
		observability.RecordOTPIssue(ctx, "user_inactive")
		return nil, ErrAccountDisabled
	}

	code, err := s.generate()
	if err != nil {
		observability.RecordOTPIssue(ctx, "error")
		return nil, apperr.Internal(err)
	}
	now := s.now()
	vc := &domain.VerificationCode{
		Email:     in.Email,
		Code:      code,
		ExpiresAt: now.Add(s.policy.CodeTTL),
		CreatedAt: now,
	}
	if s.policy.SingleActive {
		expired, err := s.codes.Replace(ctx, vc, now)
		if err != nil {
			observability.RecordOTPIssue(ctx, "error")
			return nil, apperr.FromStore(err)
		}
		if expired > 0 {
			s.logger.DebugContext(ctx, "expired pending login codes", "email", in.Email, "count", expired)
		}
	} else if err := s.codes.Create(ctx, vc); err != nil {
		observability.RecordOTPIssue(ctx, "error")
		return nil, apperr.FromStore(err)
	}

	result := &IssueResult{Email: in.Email, ExpiresAt: vc.ExpiresAt}
	err = s.mailer.SendLoginCode(ctx, LoginCodeMessage{
		To:        in.Email,
		Name:      user.Name,
		Code:      code,
		ExpiresAt: vc.ExpiresAt,
		TTL:       s.policy.CodeTTL,
	})
	if err != nil {
		result.Warning = &DeliveryWarning{Transport: s.mailer.Transport(), Err: err}
		observability.RecordMailDelivery(ctx, s.mailer.Transport(), "failed")
		s.logger.WarnContext(ctx, "login code delivery failed", "email", in.Email, "transport", s.mailer.Transport(), "error", err)
	} else {
		observability.RecordMailDelivery(ctx, s.mailer.Transport(), "sent")
	}
	if !s.policy.Production && (result.Warning != nil || s.policy.ExposeDebugCode) {
		result.DebugCode = code
	}
	observability.RecordOTPIssue(ctx, "issued")
	return result, nil
}

func (s *LoginService) checkEmail(in RequestCodeInput) error {
	if in.Email == "" {
		return ErrEmailRequired
	}
	if err := validate.Struct(in); err != nil {
		return ErrEmailDomain.With("allowedDomain", s.policy.AllowedDomain)
	}
	domainPart := s.policy.AllowedDomain
	if !strings.HasSuffix(in.Email, domainPart) || len(in.Email) <= len(domainPart) {
		return ErrEmailDomain.With("allowedDomain", domainPart)
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return ErrEmailDomain.With("allowedDomain", domainPart)
	}
	return nil
}

func (s *LoginService) VerifyCode(ctx context.Context, in VerifyCodeInput) (res *VerifyResult, err error) {
	ctx, span := observability.StartSpan(ctx, "LoginService.VerifyCode")
	defer func() { observability.EndSpan(span, err) }()

	in.Email = NormalizeEmail(in.Email)
	in.Code = strings.TrimSpace(in.Code)
	if err := validate.Struct(in); err != nil {
		observability.RecordOTPVerify(ctx, "malformed")
		return nil, ErrInvalidCodeFormat
	}

	if retry, err := s.guard.Check(ctx, AuthAbuseScopeVerify, in.Email, in.ClientIP); err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(AuthAbuseScopeVerify), "check", "error")
		s.logger.WarnContext(ctx, "verify abuse guard check failed, allowing attempt", "error", err)
	} else if retry > 0 {
		observability.RecordAuthAbuseGuardEvent(ctx, string(AuthAbuseScopeVerify), "check", "blocked")
		observability.RecordOTPVerify(ctx, "rate_limited")
		return nil, ErrTooManyAttempts.With("retryAfter", int(math.Ceil(retry.Seconds())))
	}

	now := s.now()
	vc, err := s.codes.FindActive(ctx, in.Email, in.Code, now)
	if errors.Is(err, repository.ErrVerificationCodeNotFound) {
		s.registerFailure(ctx, in)
		observability.RecordOTPVerify(ctx, "invalid_code")
		return nil, ErrInvalidCode
	}
	if err != nil {
		observability.RecordOTPVerify(ctx, "error")
		return nil, apperr.FromStore(err)
	}
	if err := s.codes.Consume(ctx, vc.ID, now); err != nil {
		if errors.Is(err, repository.ErrVerificationCodeNotFound) {
			observability.RecordOTPVerify(ctx, "invalid_code")
			return nil, ErrInvalidCode
		}
		observability.RecordOTPVerify(ctx, "error")
		return nil, apperr.FromStore(err)
	}
	if err := s.guard.Reset(ctx, AuthAbuseScopeVerify, in.Email, in.ClientIP); err != nil {
		s.logger.WarnContext(ctx, "verify abuse guard reset failed", "error", err)
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.logger.WarnContext(ctx, "login code consumed for missing user", "email", in.Email, "code_id", vc.ID)
		observability.RecordOTPVerify(ctx, "success")
		return &VerifyResult{}, nil
	}
	if err != nil {
		observability.RecordOTPVerify(ctx, "error")
		return nil, apperr.FromStore(err)
	}

	grant, err := s.sessions.Establish(ctx, user.ID)
	if err != nil {
		observability.RecordOTPVerify(ctx, "error")
		return nil, err
	}
	observability.RecordOTPVerify(ctx, "success")
	return &VerifyResult{User: user, Session: grant}, nil
}

func (s *LoginService) registerFailure(ctx context.Context, in VerifyCodeInput) {
	delay, err := s.guard.RegisterFailure(ctx, AuthAbuseScopeVerify, in.Email, in.ClientIP)
	if err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(AuthAbuseScopeVerify), "failure", "error")
		s.logger.WarnContext(ctx, "verify abuse guard update failed", "error", err)
		return
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(AuthAbuseScopeVerify), "failure", "recorded")
	if delay > 0 {
		observability.RecordAuthAbuseCooldown(ctx, string(AuthAbuseScopeVerify), "failure", delay)
	}
}

func (s *LoginService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return user, nil
}
