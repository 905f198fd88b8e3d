package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"number-lookup-api/configs"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService guards the admin surface. Admin requests carry either the raw
// shared secret or a short-lived JWT issued by Login against that secret.
// When ADMIN_SECRET_HASH is set the raw secret is verified with bcrypt and
// never kept in the environment.
type AuthService struct {
	secret     string
	secretHash string
	jwtSecret  []byte
	jwtTTL     time.Duration
}

func NewAuthService() *AuthService {
	return &AuthService{
		secret:     configs.AppConfig.AdminSecret,
		secretHash: configs.AppConfig.AdminSecretHash,
		jwtSecret:  []byte(configs.AppConfig.JWTSecret),
		jwtTTL:     configs.AppConfig.JWTTTL,
	}
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateSecret checks the raw admin secret. A deployment with neither
// secret nor hash configured has no admin surface at all.
func (s *AuthService) ValidateSecret(secret string) bool {
	if secret == "" {
		return false
	}
	if s.secretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.secretHash), []byte(secret)) == nil
	}
	if s.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.secret), []byte(secret)) == 1
}

// GenerateToken issues an HS256 admin token after a successful Login.
func (s *AuthService) GenerateToken() (string, error) {
	now := time.Now()
	claims := &adminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "number-lookup-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifies an admin JWT.
func (s *AuthService) ValidateToken(tokenString string) error {
	claims := &adminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid || claims.Role != "admin" {
		return errors.New("invalid admin token")
	}
	return nil
}

// Authorize accepts either the raw secret or a bearer token, mirroring the
// two ways admin tooling calls these endpoints.
func (s *AuthService) Authorize(secretOrToken string) bool {
	if secretOrToken == "" {
		return false
	}
	if s.ValidateSecret(secretOrToken) {
		return true
	}
	return s.ValidateToken(secretOrToken) == nil
}
