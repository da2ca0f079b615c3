package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenTTL = 15 * time.Minute

// Service authenticates the single overlay operator. The control password is
// hashed once at startup; login compares against the hash and issues a short
// lived HS256 token for the control surface.
type Service struct {
	secret       []byte
	passwordHash []byte
}

type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

func NewService(secret, controlPassword string) (*Service, error) {
	if controlPassword == "" {
		return nil, errors.New("control password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(controlPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Service{secret: []byte(secret), passwordHash: hash}, nil
}

// Login checks the operator password and returns a bearer token.
func (s *Service) Login(password string) (TokenResponse, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return TokenResponse{}, errors.New("invalid credentials")
	}

	token, err := s.signToken("operator", accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateAccessToken returns the operator name carried by a valid token.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.Operator, nil
}

func (s *Service) signToken(operator string, ttl time.Duration) (string, error) {
	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}
