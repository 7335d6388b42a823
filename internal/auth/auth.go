package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hkealoha/town-weather-service/internal/models"
	"github.com/hkealoha/town-weather-service/internal/store"
)

const (
	guestReputation     = 1
	federatedReputation = 10
)

var (
	ErrMissingOrigin = errors.New("client origin required")
	ErrMissingClaims = errors.New("subject id and email required")
	ErrInvalidToken  = errors.New("invalid token")
)

// Session is the result of a sign-in: a signed bearer token plus the user it
// identifies. Returning is true when the sign-in matched an existing record.
type Session struct {
	Token     string
	User      models.User
	Returning bool
}

// Service issues identities and bearer tokens. Guests are deduplicated by
// client origin; federated sign-ins by subject id or email.
type Service struct {
	users    store.UserStore
	secret   []byte
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewService(users store.UserStore, secret []byte, tokenTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		secret:   secret,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// GuestLogin returns the guest identity for this client origin, creating one
// with the default guest reputation on first sight.
func (s *Service) GuestLogin(ctx context.Context, originIP string) (Session, error) {
	if originIP == "" {
		return Session{}, ErrMissingOrigin
	}

	user, err := s.users.FindByOriginIP(ctx, originIP)
	returning := true
	switch {
	case errors.Is(err, store.ErrNotFound):
		returning = false
		user, err = s.users.Create(ctx, models.User{
			GuestID:    uuid.NewString(),
			OriginIP:   originIP,
			Reputation: guestReputation,
		})
		if err != nil {
			return Session{}, fmt.Errorf("create guest user: %w", err)
		}
		s.logger.Info("guest user created", zap.String("userId", user.ID))
	case err != nil:
		return Session{}, fmt.Errorf("lookup guest user: %w", err)
	}

	return s.session(user, returning)
}

// GoogleLogin returns the federated identity for the given profile claims,
// creating one with the elevated default reputation on first sight.
func (s *Service) GoogleLogin(ctx context.Context, googleID, email string) (Session, error) {
	if googleID == "" || email == "" {
		return Session{}, ErrMissingClaims
	}

	user, err := s.users.FindByGoogle(ctx, googleID, email)
	returning := true
	switch {
	case errors.Is(err, store.ErrNotFound):
		returning = false
		user, err = s.users.Create(ctx, models.User{
			GoogleID:   googleID,
			Email:      email,
			Reputation: federatedReputation,
		})
		if err != nil {
			return Session{}, fmt.Errorf("create federated user: %w", err)
		}
		s.logger.Info("federated user created", zap.String("userId", user.ID))
	case err != nil:
		return Session{}, fmt.Errorf("lookup federated user: %w", err)
	}

	return s.session(user, returning)
}

// VerifyToken parses a bearer token and returns the user id it carries.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) session(user models.User, returning bool) (Session, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": user.ID,
		"iat":    now.Unix(),
		"exp":    now.Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, User: user, Returning: returning}, nil
}
