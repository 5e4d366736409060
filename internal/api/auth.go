package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/kaydenvu/CPSC455-Project1/internal/types"
	"github.com/teris-io/shortid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultJwtExpiration = time.Hour * 24

	tokenCookieKey = "token"
	anonCookieKey  = "anon"

	userIdClaim = "user-id"
	anonIdClaim = "anon-id"
	expClaim    = "exp"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(userIdKey).(int)

	return userId, ok
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *GoChatApp) createJwtForSession(user types.User, exp time.Duration) (string, error) {
	return s.signClaims(jwt.MapClaims{
		userIdClaim: user.Id,
		expClaim:    time.Now().Add(exp).Unix(),
	})
}

// createAnonToken signs an anonymous session id. The token carries no
// expiry; the cookie holding it lives as long as the browser session.
func (s *GoChatApp) createAnonToken(anonId string) (string, error) {
	return s.signClaims(jwt.MapClaims{
		anonIdClaim: anonId,
	})
}

func (s *GoChatApp) signClaims(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

func (s *GoChatApp) verifyToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

func (s *GoChatApp) extractUserIdFromToken(tokenString string) (int, error) {
	claims, err := s.verifyToken(tokenString)
	if err != nil {
		return 0, err
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid user id claim")
	}

	return int(userId), nil
}

func (s *GoChatApp) extractAnonId(tokenString string) (string, error) {
	claims, err := s.verifyToken(tokenString)
	if err != nil {
		return "", err
	}

	anonId, ok := claims[anonIdClaim].(string)
	if !ok || anonId == "" {
		return "", fmt.Errorf("invalid anonymous id claim")
	}

	return anonId, nil
}

// resolveIdentity returns the principal behind a websocket request. A valid
// token cookie yields the account. Otherwise the anonymous id from the anon
// cookie is reused, or a new one is minted and returned as a cookie to set.
func (s *GoChatApp) resolveIdentity(r *http.Request) (types.Identity, *http.Cookie, error) {
	if tokenCookie, err := r.Cookie(tokenCookieKey); err == nil {
		userId, err := s.extractUserIdFromToken(tokenCookie.Value)
		if err == nil {
			user, err := s.db.GetAccountById(userId)
			if err == nil {
				return types.AuthenticatedIdentity(types.User{Id: user.Id, Username: user.Username}), nil, nil
			}
			s.log.Printf("lookup account %d: %v", userId, err)
		}
	}

	if anonCookie, err := r.Cookie(anonCookieKey); err == nil {
		if anonId, err := s.extractAnonId(anonCookie.Value); err == nil {
			return types.AnonymousIdentity(anonId), nil, nil
		}
	}

	anonId, err := shortid.Generate()
	if err != nil {
		return types.Identity{}, nil, fmt.Errorf("generate anonymous id: %w", err)
	}

	token, err := s.createAnonToken(anonId)
	if err != nil {
		return types.Identity{}, nil, fmt.Errorf("sign anonymous id: %w", err)
	}

	return types.AnonymousIdentity(anonId), createAnonCookie(token), nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// createAnonCookie has no expiry so it is dropped when the browser session
// ends.
func createAnonCookie(tokenString string) *http.Cookie {
	return &http.Cookie{
		Name:     anonCookieKey,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
