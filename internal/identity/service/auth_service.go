// Package service implements the phone/OTP authentication flows: requesting and verifying
// codes, refreshing token pairs, and logging out.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"otp-auth/backend/internal/audit"
	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/devotp"
	"otp-auth/backend/internal/ids"
	"otp-auth/backend/internal/metrics"
	"otp-auth/backend/internal/otp"
	"otp-auth/backend/internal/otp/sms"
	"otp-auth/backend/internal/security"
	sessiondomain "otp-auth/backend/internal/session/domain"
	sessionservice "otp-auth/backend/internal/session/service"
	"otp-auth/backend/internal/telemetry"
	telemetrydomain "otp-auth/backend/internal/telemetry/domain"
	userdomain "otp-auth/backend/internal/user/domain"
)

// AckMessage is returned by RequestOTP whether or not the phone number is known.
const AckMessage = "If eligible, OTP will be sent"

// TokenType is the token_type of every issued pair.
const TokenType = "Bearer"

const (
	msgInvalidOTP     = "invalid or expired OTP"
	msgInvalidRefresh = "invalid refresh token"
)

var tracer = otel.Tracer("otp-auth/identity")

// OTPEngine issues and verifies one-time codes.
type OTPEngine interface {
	Generate(ctx context.Context, phone, ip string) (code string, expiresAt time.Time, err error)
	Verify(ctx context.Context, phone, code string) error
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByPhone(ctx context.Context, phone string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionStore is the part of the session store the auth service drives.
type SessionStore interface {
	Create(ctx context.Context, p sessionservice.CreateParams) (*sessiondomain.Session, error)
	Rotate(ctx context.Context, p sessionservice.RotateParams) (*sessiondomain.Session, error)
	RevokeSession(ctx context.Context, id, reason string) error
	RevokeAllUserSessions(ctx context.Context, userID, reason string) (int64, error)
	RevokeFamily(ctx context.Context, familyID, reason string) (int64, error)
	RecentlyRotated(ctx context.Context, familyID string, within time.Duration) (bool, error)
}

// FlowRecorder counts flow outcomes.
type FlowRecorder interface {
	FlowOutcome(flow, outcome string)
}

// ClientInfo describes the caller of a flow.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Ack is a plain acknowledgement.
type Ack struct {
	Message string
}

// TokenResult is returned by VerifyOTP and RefreshTokens.
type TokenResult struct {
	User             *userdomain.User
	SessionID        string
	TokenType        string
	AccessToken      string
	RefreshToken     string
	ExpiresIn        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Deps holds the collaborators of AuthService. Sender or DevOTP must be set; the rest of
// the optional fields (Audit, Events, Metrics) may be nil.
type Deps struct {
	OTP      OTPEngine
	Sender   sms.Sender
	DevOTP   devotp.Store
	Users    UserRepo
	Sessions SessionStore
	Tokens   *security.TokenProvider
	Audit    audit.AuditLogger
	Events   telemetry.EventEmitter
	Metrics  FlowRecorder
	// ExpiresIn is echoed to clients as the access token lifetime (e.g. "15m").
	ExpiresIn string
	// ReuseRevokesFamily revokes the whole token family when a correctly signed refresh token
	// matches no active session.
	ReuseRevokesFamily bool
	// ReuseGrace skips that revocation when the family rotated this recently, treating the
	// request as a concurrent duplicate rather than a replay.
	ReuseGrace time.Duration
}

// AuthService orchestrates the OTP, session, token, and user components.
type AuthService struct {
	d Deps
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	if d.ExpiresIn == "" && d.Tokens != nil {
		d.ExpiresIn = d.Tokens.AccessTTL().String()
	}
	return &AuthService{d: d}
}

// RequestOTP issues a code for phone and delivers it. Cooldown and QuotaExceeded reach the
// caller; any other failure is a generic internal error.
func (s *AuthService) RequestOTP(ctx context.Context, rawPhone string, client ClientInfo) (_ *Ack, err error) {
	const op = "auth.RequestOTP"
	ctx, span := tracer.Start(ctx, "AuthService.RequestOTP")
	defer func() { s.finish(span, metrics.FlowRequestOTP, err) }()

	phone, err := otp.NormalizePhone(rawPhone)
	if err != nil {
		return nil, autherr.New(autherr.InvalidArgument, op, "invalid phone number")
	}
	span.SetAttributes(attribute.String("phone", otp.MaskPhone(phone)))

	code, expiresAt, err := s.d.OTP.Generate(ctx, phone, client.IP)
	if err != nil {
		switch autherr.KindOf(err) {
		case autherr.Cooldown, autherr.QuotaExceeded:
			return nil, err
		}
		log.Err(err).Str("phone", otp.MaskPhone(phone)).Msg("auth: otp generate failed")
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}

	switch {
	case s.d.DevOTP != nil:
		s.d.DevOTP.Put(ctx, phone, code, expiresAt)
	case s.d.Sender != nil:
		if err := s.d.Sender.SendOTP(ctx, phone, code); err != nil {
			log.Err(err).Str("phone", otp.MaskPhone(phone)).Msg("auth: otp delivery failed")
			return nil, autherr.Wrap(autherr.Internal, op, err)
		}
	default:
		return nil, autherr.New(autherr.Internal, op, "no otp delivery channel configured")
	}

	log.Info().Str("phone", otp.MaskPhone(phone)).Time("expires_at", expiresAt).Msg("auth: otp issued")
	s.audit(ctx, "", audit.ActionOTPRequested, map[string]string{"phone": otp.MaskPhone(phone)})
	s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventOTPRequested, Outcome: "ok", Phone: otp.MaskPhone(phone)})
	return &Ack{Message: AckMessage}, nil
}

// VerifyOTP consumes the newest code for phone, finds or creates the user, and opens a new
// session on a fresh token family. Every code failure is reported as one InvalidCredential.
func (s *AuthService) VerifyOTP(ctx context.Context, rawPhone, code string, client ClientInfo) (_ *TokenResult, err error) {
	const op = "auth.VerifyOTP"
	ctx, span := tracer.Start(ctx, "AuthService.VerifyOTP")
	defer func() { s.finish(span, metrics.FlowVerifyOTP, err) }()

	phone, err := otp.NormalizePhone(rawPhone)
	if err != nil {
		return nil, autherr.New(autherr.InvalidArgument, op, "invalid phone number")
	}
	masked := otp.MaskPhone(phone)
	span.SetAttributes(attribute.String("phone", masked))

	if err := s.d.OTP.Verify(ctx, phone, strings.TrimSpace(code)); err != nil {
		kind := autherr.KindOf(err)
		if kind == autherr.Internal {
			return nil, autherr.Wrap(autherr.Internal, op, err)
		}
		s.audit(ctx, "", audit.ActionLoginFailed, map[string]string{"phone": masked, "reason": kind.String()})
		s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventLoginFailed, Outcome: kind.String(), Phone: masked})
		return nil, &autherr.Error{Kind: autherr.InvalidCredential, Op: op, Msg: msgInvalidOTP, Err: err}
	}

	user, err := s.findOrCreateUser(ctx, phone)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		s.audit(ctx, user.ID, audit.ActionLoginFailed, map[string]string{"reason": "inactive"})
		return nil, autherr.New(autherr.InvalidCredential, op, msgInvalidOTP)
	}

	familyID, err := ids.NewULID(time.Now())
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	refresh, _, refreshExp, err := s.d.Tokens.IssueRefresh(user.ID, familyID, user.PhoneNumber)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	sess, err := s.d.Sessions.Create(ctx, sessionservice.CreateParams{
		UserID:    user.ID,
		RawSecret: refresh,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		TTL:       s.d.Tokens.RefreshTTL(),
		FamilyID:  familyID,
	})
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	res, err := s.issueAccess(op, user, sess.ID, refresh, refreshExp)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("user_id", user.ID), attribute.String("session_id", sess.ID))
	log.Info().Str("user_id", user.ID).Str("session_id", sess.ID).Msg("auth: login")
	s.audit(ctx, user.ID, audit.ActionLogin, map[string]string{"session_id": sess.ID})
	s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventLogin, Outcome: "ok", UserID: user.ID, SessionID: sess.ID, Phone: masked})
	return res, nil
}

// RefreshTokens rotates the session behind raw and returns a new pair. A token that fails
// signature or expiry checks is rejected without touching the store; every store failure is
// reported as one InvalidCredential.
func (s *AuthService) RefreshTokens(ctx context.Context, raw string, client ClientInfo) (_ *TokenResult, err error) {
	const op = "auth.RefreshTokens"
	ctx, span := tracer.Start(ctx, "AuthService.RefreshTokens")
	defer func() { s.finish(span, metrics.FlowRefresh, err) }()

	raw = strings.TrimSpace(raw)
	claims, err := s.d.Tokens.ValidateRefresh(raw)
	if err != nil {
		s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventRefreshFailed, Outcome: "bad_token"})
		return nil, &autherr.Error{Kind: autherr.InvalidCredential, Op: op, Msg: msgInvalidRefresh, Err: err}
	}
	userID := claims.Subject
	span.SetAttributes(attribute.String("user_id", userID), attribute.String("family_id", claims.FamilyID))

	next, _, nextExp, err := s.d.Tokens.IssueRefresh(userID, claims.FamilyID, claims.Phone)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	sess, err := s.d.Sessions.Rotate(ctx, sessionservice.RotateParams{
		UserID:    userID,
		OldSecret: raw,
		NewSecret: next,
		TTL:       s.d.Tokens.RefreshTTL(),
		IP:        client.IP,
		UserAgent: client.UserAgent,
	})
	if err != nil {
		kind := autherr.KindOf(err)
		if kind == autherr.Internal {
			return nil, autherr.Wrap(autherr.Internal, op, err)
		}
		if kind == autherr.NotFound {
			s.handleReuse(ctx, userID, claims.FamilyID)
		}
		log.Warn().Str("user_id", userID).Str("reason", kind.String()).Msg("auth: refresh rejected")
		s.audit(ctx, userID, audit.ActionRefreshFailed, map[string]string{"reason": kind.String(), "family_id": claims.FamilyID})
		s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventRefreshFailed, Outcome: kind.String(), UserID: userID})
		return nil, &autherr.Error{Kind: autherr.InvalidCredential, Op: op, Msg: msgInvalidRefresh, Err: err}
	}

	user, err := s.d.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	if user == nil || !user.IsActive {
		if rerr := s.d.Sessions.RevokeSession(ctx, sess.ID, sessiondomain.ReasonUserInactive); rerr != nil {
			log.Err(rerr).Str("session_id", sess.ID).Msg("auth: revoke session of inactive user")
		}
		s.audit(ctx, userID, audit.ActionRefreshFailed, map[string]string{"reason": "user_inactive"})
		return nil, autherr.New(autherr.InvalidCredential, op, msgInvalidRefresh)
	}

	res, err := s.issueAccess(op, user, sess.ID, next, nextExp)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, userID, audit.ActionRefresh, map[string]string{"session_id": sess.ID})
	s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventRefresh, Outcome: "ok", UserID: userID, SessionID: sess.ID})
	return res, nil
}

// Logout revokes every active session of userID. Calling it again is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID string) (_ *Ack, err error) {
	const op = "auth.Logout"
	ctx, span := tracer.Start(ctx, "AuthService.Logout", trace.WithAttributes(attribute.String("user_id", userID)))
	defer func() { s.finish(span, metrics.FlowLogout, err) }()

	if userID == "" {
		return nil, autherr.New(autherr.InvalidArgument, op, "user id is required")
	}
	n, err := s.d.Sessions.RevokeAllUserSessions(ctx, userID, sessiondomain.ReasonLogout)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	log.Info().Str("user_id", userID).Int64("revoked", n).Msg("auth: logout")
	s.audit(ctx, userID, audit.ActionLogout, nil)
	s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventLogout, Outcome: "ok", UserID: userID})
	return &Ack{Message: "Logged out successfully"}, nil
}

// handleReuse applies the reuse policy to a correctly signed refresh token that matched no
// active session.
func (s *AuthService) handleReuse(ctx context.Context, userID, familyID string) {
	if !s.d.ReuseRevokesFamily || familyID == "" {
		return
	}
	if s.d.ReuseGrace > 0 {
		recent, err := s.d.Sessions.RecentlyRotated(ctx, familyID, s.d.ReuseGrace)
		if err != nil {
			log.Err(err).Str("family_id", familyID).Msg("auth: reuse grace check failed")
		}
		if recent {
			return
		}
	}
	n, err := s.d.Sessions.RevokeFamily(ctx, familyID, sessiondomain.ReasonReuseDetected)
	if err != nil {
		log.Err(err).Str("family_id", familyID).Msg("auth: revoke family failed")
		return
	}
	log.Warn().Str("user_id", userID).Str("family_id", familyID).Int64("revoked", n).Msg("auth: refresh token reuse detected")
	s.audit(ctx, userID, audit.ActionRefreshReuseDetected, map[string]string{"family_id": familyID})
	s.emit(ctx, &telemetrydomain.AuthEvent{EventType: telemetrydomain.EventReuseDetected, Outcome: "family_revoked", UserID: userID})
}

func (s *AuthService) findOrCreateUser(ctx context.Context, phone string) (*userdomain.User, error) {
	const op = "auth.findOrCreateUser"
	u, err := s.d.Users.GetByPhone(ctx, phone)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	if u != nil {
		return u, nil
	}
	now := time.Now().UTC()
	u = &userdomain.User{
		ID:          uuid.New().String(),
		PhoneNumber: phone,
		IsActive:    true,
		Roles:       []string{userdomain.RoleUser},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.d.Users.Create(ctx, u)
	if autherr.KindOf(err) == autherr.Conflict {
		// lost a signup race for the same phone
		existing, gerr := s.d.Users.GetByPhone(ctx, phone)
		if gerr != nil || existing == nil {
			return nil, autherr.Wrap(autherr.Internal, op, err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	log.Info().Str("user_id", u.ID).Msg("auth: user created")
	return u, nil
}

func (s *AuthService) issueAccess(op string, user *userdomain.User, sessionID, refresh string, refreshExp time.Time) (*TokenResult, error) {
	access, _, accessExp, err := s.d.Tokens.IssueAccess(security.AccessSubject{
		UserID:    user.ID,
		SessionID: sessionID,
		Phone:     user.PhoneNumber,
		Roles:     user.Roles,
	})
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	return &TokenResult{
		User:             user,
		SessionID:        sessionID,
		TokenType:        TokenType,
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        s.d.ExpiresIn,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) finish(span trace.Span, flow string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = autherr.KindOf(err).String()
		if autherr.Retryable(err) {
			outcome = "canceled"
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, outcome)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
	if s.d.Metrics != nil {
		s.d.Metrics.FlowOutcome(flow, outcome)
	}
}

func (s *AuthService) audit(ctx context.Context, userID, action string, meta map[string]string) {
	if s.d.Audit != nil {
		s.d.Audit.LogEvent(ctx, userID, action, audit.ResourceAuth, meta)
	}
}

func (s *AuthService) emit(ctx context.Context, ev *telemetrydomain.AuthEvent) {
	ev.Source = "auth_service"
	telemetry.EmitAsync(ctx, s.d.Events, ev)
}
