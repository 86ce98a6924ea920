package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gallery-dev/gallery/shared/domain"
	internal_errors "github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
	"github.com/golang-jwt/jwt/v5"
)

type JwtService interface {
	NewToken(user domain.UserSummary) (string, error)
	DecodeToken(jwtStr string) (*jwt.Token, error)
	UserFromToken(jwtStr string) (*domain.UserSummary, error)
	TTL() time.Duration
}

type Jwt struct {
	secretKey string
	ttl       time.Duration
}

func New(secretKey string, ttl time.Duration) JwtService {
	return &Jwt{secretKey, ttl}
}

func (j *Jwt) TTL() time.Duration {
	return j.ttl
}

func (j *Jwt) NewToken(user domain.UserSummary) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{}
	claims["uid"] = user.Id
	claims["email"] = user.Email
	claims["role"] = string(user.Role)
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(j.ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		logger.Log.Error("failed to sign access token", "user_id", user.Id, "error", err)
		return "", errors.New("can't create token")
	}

	return tokenString, nil
}

func (j *Jwt) DecodeToken(jwtStr string) (*jwt.Token, error) {
	token, err := jwt.Parse(jwtStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &internal_errors.ErrorWithStatusCode{Message: "Access token expired", StatusCode: http.StatusUnauthorized}
		}
		logger.Log.Debug("access token rejected", "error", err)
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid token signature", StatusCode: http.StatusUnauthorized}
	}

	if !token.Valid {
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid access token", StatusCode: http.StatusUnauthorized}
	}

	return token, nil
}

// UserFromToken decodes the token and rebuilds the user summary from its claims.
func (j *Jwt) UserFromToken(jwtStr string) (*domain.UserSummary, error) {
	token, err := j.DecodeToken(jwtStr)
	if err != nil {
		return nil, err
	}
	invalid := &internal_errors.ErrorWithStatusCode{Message: "Invalid token claims", StatusCode: http.StatusUnauthorized}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, invalid
	}
	uid, ok := claims["uid"].(float64)
	if !ok {
		return nil, invalid
	}
	email, ok := claims["email"].(string)
	if !ok {
		return nil, invalid
	}
	role, ok := claims["role"].(string)
	if !ok || !domain.Role(role).Valid() {
		return nil, invalid
	}

	return &domain.UserSummary{Id: int64(uid), Email: email, Role: domain.Role(role)}, nil
}
