package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	TokenCookie = "chat_token"

	identityKey     = "chat_identity"
	identityJWT     = "jwt"
	identityGuest   = "guest"
	sessionUserID   = "user_id"
	sessionUsername = "username"
)

// Claims is what an external issuer puts in the chat_token cookie.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns the user it names.
func ParseToken(tokenStr string, secret []byte) (*domain.User, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	if len(name) > domain.MaxUsernameLen {
		name = name[:domain.MaxUsernameLen]
	}
	return domain.NewUserWithID(domain.UserID(claims.Subject), name)
}

// IdentityMiddleware resolves the caller: a valid chat_token wins,
// otherwise a guest identity is kept in the cookie session.
func IdentityMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret != "" {
			if tok, err := c.Cookie(TokenCookie); err == nil && tok != "" {
				user, err := ParseToken(tok, []byte(jwtSecret))
				if err == nil {
					c.Set(signal.ContextUserKey, user)
					c.Set(identityKey, identityJWT)
					c.Next()
					return
				}
				log.Warn().Err(err).Str("module", "adapters.http").Msg("rejected chat_token, falling back to guest")
			}
		}

		user, err := guestUser(sessions.Default(c))
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("guest identity")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity unavailable"})
			return
		}
		c.Set(signal.ContextUserKey, user)
		c.Set(identityKey, identityGuest)
		c.Next()
	}
}

func guestUser(s sessions.Session) (*domain.User, error) {
	id, _ := s.Get(sessionUserID).(string)
	name, _ := s.Get(sessionUsername).(string)
	if id != "" && name != "" {
		return domain.NewUserWithID(domain.UserID(id), name)
	}
	user, err := domain.NewUser("guest")
	if err != nil {
		return nil, err
	}
	user.Username = "guest-" + string(user.ID)[:4]
	s.Set(sessionUserID, string(user.ID))
	s.Set(sessionUsername, user.Username)
	if err := s.Save(); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return user, nil
}

func currentUser(c *gin.Context) *domain.User {
	v, _ := c.Get(signal.ContextUserKey)
	u, _ := v.(*domain.User)
	return u
}
