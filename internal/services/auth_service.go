package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store"
)

const (
	// CodeTTL is how long an issued code can be redeemed.
	CodeTTL = 10 * time.Minute

	minUsernameLength = 2
)

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// CodeSender delivers an issued code to the phone out of band.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// CodeSenderFunc adapts a function to CodeSender.
type CodeSenderFunc func(ctx context.Context, phone, code string) error

func (f CodeSenderFunc) SendCode(ctx context.Context, phone, code string) error {
	return f(ctx, phone, code)
}

// LogCodeSender writes codes to the log instead of sending an SMS.
type LogCodeSender struct {
	Log *zap.SugaredLogger
}

func (s LogCodeSender) SendCode(_ context.Context, phone, code string) error {
	s.Log.Infow("otp issued", "phone", phone, "code", code)
	return nil
}

// AuthOptions tunes AuthService.
type AuthOptions struct {
	// ExposeCodes returns issued codes to the caller. Only for trusted development setups.
	ExposeCodes bool
	Now         func() time.Time
}

// AuthService issues and redeems one-time codes and is the only writer of sessions.
type AuthService struct {
	store       store.Store
	sender      CodeSender
	log         *zap.SugaredLogger
	exposeCodes bool
	now         func() time.Time
}

func NewAuthService(st store.Store, sender CodeSender, log *zap.SugaredLogger, opts AuthOptions) *AuthService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		store:       st,
		sender:      sender,
		log:         log,
		exposeCodes: opts.ExposeCodes,
		now:         now,
	}
}

// CodeRequest describes an issued challenge. Code is empty unless codes are exposed.
type CodeRequest struct {
	Phone     string    `json:"phone"`
	Code      string    `json:"otp,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestCode issues a new code for phone. Earlier unused codes stay redeemable until they expire.
func (s *AuthService) RequestCode(ctx context.Context, phone string) (*CodeRequest, error) {
	if err := validatePhone(phone); err != nil {
		s.log.Infow("otp request rejected", "phone", phone, "error", err)
		return nil, err
	}

	code, err := generateCode()
	if err != nil {
		s.log.Errorw("otp generation failed", "error", err)
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	challenge := models.OTPVerification{
		BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now},
		Phone:     phone,
		OTP:       code,
		ExpiresAt: now.Add(CodeTTL),
	}
	if err := s.store.Insert(ctx, models.TableOTPVerifications, &challenge); err != nil {
		s.log.Errorw("otp store failed", "phone", phone, "error", err)
		return nil, storeErr("failed to send OTP", err)
	}

	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		s.log.Errorw("otp delivery failed", "phone", phone, "error", err)
		return nil, fmt.Errorf("failed to send OTP: %w", err)
	}

	s.log.Infow("otp sent", "phone", phone, "expires_at", challenge.ExpiresAt)

	res := &CodeRequest{Phone: phone, ExpiresAt: challenge.ExpiresAt}
	if s.exposeCodes {
		res.Code = code
	}
	return res, nil
}

// VerifyCode redeems code for phone, signs the user in on sess and returns the user.
// New phone numbers need a username; the code is only consumed once that is valid.
func (s *AuthService) VerifyCode(ctx context.Context, sess session.Store, phone, code, username string) (*models.User, error) {
	if err := validatePhone(phone); err != nil {
		s.log.Infow("otp verification rejected", "phone", phone, "error", err)
		return nil, err
	}
	if !codePattern.MatchString(code) {
		s.log.Infow("otp verification rejected", "phone", phone, "error", "malformed code")
		return nil, invalid("otp", "OTP must be 6 digits")
	}

	challenge, err := store.First[models.OTPVerification](ctx, s.store, models.TableOTPVerifications, store.Query{
		Filter: store.Filter{"phone": phone, "otp": code, "is_used": false},
		Order:  "created_at.desc",
	})
	if err != nil {
		s.log.Errorw("otp lookup failed", "phone", phone, "error", err)
		return nil, storeErr("failed to verify OTP", err)
	}
	if challenge == nil {
		s.log.Infow("otp verification failed", "phone", phone, "reason", "no matching code")
		return nil, fmt.Errorf("invalid or expired OTP: %w", ErrNotFound)
	}
	if challenge.Expired(s.now()) {
		s.log.Infow("otp verification failed", "phone", phone, "reason", "expired")
		return nil, fmt.Errorf("OTP has expired: %w", ErrExpired)
	}

	user, err := s.findUser(ctx, phone)
	if err != nil {
		s.log.Errorw("user lookup failed", "phone", phone, "error", err)
		return nil, storeErr("failed to verify OTP", err)
	}
	if user == nil && utf8.RuneCountInString(username) < minUsernameLength {
		s.log.Infow("otp verification rejected", "phone", phone, "error", "username required")
		return nil, invalid("username", "Username is required for new users (minimum 2 characters)")
	}

	n, err := s.store.Update(ctx, models.TableOTPVerifications,
		store.Filter{"id": challenge.ID, "is_used": false},
		map[string]any{"is_used": true})
	if err != nil {
		s.log.Errorw("otp consume failed", "phone", phone, "error", err)
		return nil, storeErr("failed to verify OTP", err)
	}
	if n == 0 {
		s.log.Infow("otp verification failed", "phone", phone, "reason", "already used")
		return nil, fmt.Errorf("invalid or expired OTP: %w", ErrNotFound)
	}

	if user != nil {
		if _, err := s.store.Update(ctx, models.TableUsers,
			store.Filter{"id": user.ID},
			map[string]any{"is_verified": true}); err != nil {
			s.log.Errorw("user verification update failed", "user_id", user.ID, "error", err)
			return nil, storeErr("failed to verify OTP", err)
		}
		user.IsVerified = true
	} else {
		user, err = s.createUser(ctx, phone, username)
		if err != nil {
			s.log.Errorw("user creation failed", "phone", phone, "error", err)
			return nil, storeErr("failed to create user", err)
		}
	}

	if err := sess.Set(ctx, session.Actor{ID: user.ID, Username: user.Username, Phone: user.Phone}); err != nil {
		s.log.Errorw("session establish failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("establish session: %w", err)
	}

	s.log.Infow("otp verified", "phone", phone, "user_id", user.ID)
	return user, nil
}

// PhoneStatus reports whether a phone number belongs to a user.
type PhoneStatus struct {
	Exists   bool   `json:"exists"`
	Username string `json:"username,omitempty"`
}

// CheckPhone looks the phone number up without changing anything.
func (s *AuthService) CheckPhone(ctx context.Context, phone string) (*PhoneStatus, error) {
	if err := validatePhone(phone); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, phone)
	if err != nil {
		s.log.Errorw("phone check failed", "phone", phone, "error", err)
		return nil, storeErr("failed to check phone", err)
	}
	if user == nil {
		return &PhoneStatus{}, nil
	}
	return &PhoneStatus{Exists: true, Username: user.Username}, nil
}

// Logout clears the session.
func (s *AuthService) Logout(ctx context.Context, sess session.Store) error {
	if err := sess.Clear(ctx); err != nil {
		s.log.Errorw("logout failed", "error", err)
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Infow("logged out")
	return nil
}

func (s *AuthService) findUser(ctx context.Context, phone string) (*models.User, error) {
	return store.First[models.User](ctx, s.store, models.TableUsers, store.Query{
		Filter: store.Filter{"phone": phone},
	})
}

// createUser inserts a verified user. A concurrent signup for the same phone wins and is reused.
func (s *AuthService) createUser(ctx context.Context, phone, username string) (*models.User, error) {
	user := &models.User{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: s.now()},
		Username:   username,
		Phone:      phone,
		IsVerified: true,
	}
	err := s.store.Insert(ctx, models.TableUsers, user)
	if errors.Is(err, store.ErrConflict) {
		existing, lookupErr := s.findUser(ctx, phone)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func validatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return invalid("phone", "Phone must be 10 digits")
	}
	return nil
}

// generateCode returns a uniformly random code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// CurrentUser loads the signed-in user's record.
func (s *AuthService) CurrentUser(ctx context.Context, sess session.Store) (*models.User, error) {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	user, err := store.First[models.User](ctx, s.store, models.TableUsers, store.Query{
		Filter: store.Filter{"id": actor.ID},
	})
	if err != nil {
		s.log.Errorw("user lookup failed", "user_id", actor.ID, "error", err)
		return nil, storeErr("failed to fetch user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", actor.ID, ErrNotFound)
	}
	return user, nil
}
