package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mgrn/tamari/internal/adapters/profile"
	"github.com/mgrn/tamari/internal/domain"
)

const ctxParticipant = "participant"

// Claims carry only identity and provider; display name and avatar are
// resolved through the profile read paths on every request so a rename
// never needs a new token.
type Claims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

func signToken(secret string, id domain.UserID, provider domain.Provider, ttl time.Duration) (string, error) {
	claims := Claims{
		Provider: string(provider),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type guestLoginRequest struct {
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
}

// GuestLogin mints an ephemeral identity: a fresh uuid, the chosen display
// name and avatar, and a bearer token for the room API.
func (ctl *Controller) GuestLogin(c *gin.Context) {
	var req guestLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}

	id := domain.UserID(uuid.NewString())
	p, err := domain.NewGuestParticipant(id, req.Name, domain.ParseAvatar(req.Avatar))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctl.guests.Put(profile.Record{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
	})

	token, err := signToken(ctl.cfg.Secret, p.UserID, domain.ProviderGuest, ctl.cfg.TokenTTL)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("sign token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_failed"})
		return
	}

	log.Info().Str("module", "adapters.http").Str("user", string(p.UserID)).Msg("guest login")
	c.JSON(http.StatusOK, gin.H{"token": token, "user": p})
}

// AuthRequired validates the bearer token and resolves the participant
// through the provider-specific profile path.
func (ctl *Controller) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		var claims Claims
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(ctl.cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		provider := domain.Provider(claims.Provider)
		id := domain.UserID(claims.Subject)
		rec, err := ctl.profiles.Lookup(c.Request.Context(), provider, id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown_identity"})
			return
		}

		c.Set(ctxParticipant, domain.Participant{
			UserID:      rec.UserID,
			DisplayName: rec.DisplayName,
			Avatar:      rec.Avatar,
			Provider:    rec.Provider,
			Email:       rec.Email,
		})
		c.Next()
	}
}

func participantFrom(c *gin.Context) domain.Participant {
	p, _ := c.Get(ctxParticipant)
	participant, _ := p.(domain.Participant)
	return participant
}
