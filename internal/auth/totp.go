package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/pquerna/otp/totp"

	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/crypto"
)

var (
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrTOTPNotConfigured  = errors.New("totp not configured for account")
	ErrInvalidTOTPCode    = errors.New("invalid totp code")
)

// TOTPService generates and checks time-based one-time codes. Secrets are
// sealed before they reach storage and opened only for verification.
type TOTPService struct {
	issuer string
	sealer crypto.Sealer
}

func NewTOTPService(issuer string, sealer crypto.Sealer) *TOTPService {
	if issuer == "" {
		issuer = "corvid-identity"
	}
	if sealer == nil {
		sealer = crypto.NoopSealer{}
	}
	return &TOTPService{issuer: issuer, sealer: sealer}
}

// TOTPEnrollment is handed to the client once at setup; the URL feeds an
// authenticator app directly or via QR.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

func (t *TOTPService) generate(accountName string) (*TOTPEnrollment, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, "", fmt.Errorf("generate totp key: %w", err)
	}
	sealed, err := t.sealer.Seal(key.Secret())
	if err != nil {
		return nil, "", fmt.Errorf("seal totp secret: %w", err)
	}
	return &TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, sealed, nil
}

func (t *TOTPService) check(code, sealedSecret string) bool {
	secret, err := t.sealer.Open(sealedSecret)
	if err != nil {
		return false
	}
	return totp.Validate(code, secret)
}

// SetupTOTP generates a pending secret for the user. The factor turns on only
// after ActivateTOTP proves an authenticator holds the secret.
func (s *Service) SetupTOTP(ctx context.Context, user *User) (*TOTPEnrollment, error) {
	if user.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}
	enrollment, sealed, err := s.totp.generate(user.Email)
	if err != nil {
		return nil, err
	}
	user.TOTPSecret = &sealed
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("store totp secret: %w", err)
	}
	return enrollment, nil
}

// ActivateTOTP turns the factor on once the user echoes a valid code from the
// pending secret.
func (s *Service) ActivateTOTP(ctx context.Context, user *User, code string) error {
	if user.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if user.TOTPSecret == nil {
		return ErrTOTPNotConfigured
	}
	if !s.totp.check(code, *user.TOTPSecret) {
		return ErrInvalidTOTPCode
	}
	user.TOTPEnabled = true
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("activate totp: %w", err)
	}
	s.audit.Log(ctx, user.ID, audit.EventTOTPEnabled, user.ID.String(), nil)
	return nil
}

// DisableTOTP removes the factor after one last valid code.
func (s *Service) DisableTOTP(ctx context.Context, user *User, code string) error {
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return ErrTOTPNotConfigured
	}
	if !s.totp.check(code, *user.TOTPSecret) {
		return ErrInvalidTOTPCode
	}
	user.TOTPEnabled = false
	user.TOTPSecret = nil
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("disable totp: %w", err)
	}
	return nil
}

// VerifyTOTP exchanges a pre-auth token and a live code for the token pair,
// completing a login that Login left half-done.
func (s *Service) VerifyTOTP(ctx context.Context, preAuthToken, code string) (*LoginResult, error) {
	claims, err := s.codec.Verify(preAuthToken)
	if err != nil || !claims.IsPreAuth() {
		return nil, ErrAuthenticationRequired
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrAuthenticationRequired
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return nil, ErrAuthenticationRequired
	}
	if !s.totp.check(code, *user.TOTPSecret) {
		s.auditLoginFailure(ctx, user.ID, user.Email, "bad_totp_code")
		return nil, ErrInvalidCredentials
	}
	if !s.principalEnabled(ctx, PrincipalKindUser, user.ID.String()) {
		s.auditLoginFailure(ctx, user.ID, user.Email, "principal_disabled")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, user.ID, audit.EventLoginSuccess, user.ID.String(), map[string]string{
		"factor": "totp",
	})
	return &LoginResult{User: user, Tokens: pair}, nil
}
