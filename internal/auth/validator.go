// Package auth validates bearer tokens for the gateway, either through the
// auth service or locally against the shared signing key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"

	"github.com/chatstack/go-chathub/internal/rpc"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenPayload is the claim set carried by a validated access token.
type TokenPayload struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Iat      int64  `json:"iat,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

type TokenValidator interface {
	Validate(ctx context.Context, token string) (*TokenPayload, error)
}

// RPCValidator delegates validation to the auth service. Transport failures
// (including an open breaker) are returned as-is so callers can tell an
// invalid token from an unreachable auth service.
type RPCValidator struct {
	client *rpc.Client
}

func NewRPCValidator(client *rpc.Client) *RPCValidator {
	return &RPCValidator{client: client}
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Valid   bool          `json:"valid"`
	Payload *TokenPayload `json:"payload,omitempty"`
}

func (v *RPCValidator) Validate(ctx context.Context, token string) (*TokenPayload, error) {
	var resp validateTokenResponse
	if err := v.client.Call(ctx, "auth.validate_token", validateTokenRequest{Token: token}, &resp); err != nil {
		return nil, err
	}

	if !resp.Valid || resp.Payload == nil {
		return nil, ErrInvalidToken
	}

	return resp.Payload, nil
}

// LocalValidator verifies tokens in-process with the shared HMAC signing
// key. Used when no auth service address is configured.
type LocalValidator struct {
	signingKey []byte
}

func NewLocalValidator(signingKey []byte) *LocalValidator {
	return &LocalValidator{signingKey: signingKey}
}

func (v *LocalValidator) Validate(_ context.Context, tokenString string) (*TokenPayload, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	payload := &TokenPayload{}
	if sub, ok := claims["sub"].(string); ok {
		payload.Sub = sub
	}
	if email, ok := claims["email"].(string); ok {
		payload.Email = email
	}
	if username, ok := claims["username"].(string); ok {
		payload.Username = username
	}
	if iat, ok := claims["iat"].(float64); ok {
		payload.Iat = int64(iat)
	}
	if exp, ok := claims["exp"].(float64); ok {
		payload.Exp = int64(exp)
	}

	if payload.Sub == "" {
		return nil, ErrInvalidToken
	}

	return payload, nil
}

// BearerToken extracts the access token from a handshake request, checking
// the Authorization header first and falling back to the token query
// parameter for clients that cannot set headers on a websocket dial.
func BearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr != "" {
		parts := strings.SplitN(hdr, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}

	return r.URL.Query().Get("token")
}
