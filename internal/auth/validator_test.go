package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/chatstack/go-chathub/internal/rpc"
	"github.com/chatstack/go-chathub/internal/testutil"
)

var testSigningKey = []byte("test-signing-key")

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	assert.NoError(t, err)
	return signed
}

func Test_LocalValidator(t *testing.T) {
	v := NewLocalValidator(testSigningKey)
	userId := uuid.New()

	t.Run("valid token", func(t *testing.T) {
		tokenString := signToken(t, testSigningKey, jwt.MapClaims{
			"sub":      userId.String(),
			"email":    "bob@example.com",
			"username": "bob",
			"exp":      time.Now().Add(time.Hour).Unix(),
		})

		payload, err := v.Validate(context.Background(), tokenString)
		assert.NoError(t, err)
		assert.Equal(t, userId.String(), payload.Sub)
		assert.Equal(t, "bob", payload.Username)
	})

	t.Run("expired token", func(t *testing.T) {
		tokenString := signToken(t, testSigningKey, jwt.MapClaims{
			"sub": userId.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := v.Validate(context.Background(), tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		tokenString := signToken(t, []byte("other-key"), jwt.MapClaims{
			"sub": userId.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := v.Validate(context.Background(), tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		tokenString := signToken(t, testSigningKey, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := v.Validate(context.Background(), tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.Validate(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func Test_RPCValidator(t *testing.T) {
	userId := uuid.New()

	srv := rpc.NewServer(testutil.TestLogger(t), "127.0.0.1:0")
	srv.Handle("auth.validate_token", func(_ context.Context, data json.RawMessage) (any, error) {
		var req validateTokenRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}

		if req.Token != "good-token" {
			return validateTokenResponse{Valid: false}, nil
		}
		return validateTokenResponse{
			Valid: true,
			Payload: &TokenPayload{
				Sub:      userId.String(),
				Username: "bob",
			},
		}, nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.NoError(t, <-errCh)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "127.0.0.1:0" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client := rpc.NewClient("auth-service", srv.Addr(), rpc.NewBreaker(rpc.BreakerOptions{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		CallTimeout:      2 * time.Second,
		ResetTimeout:     30 * time.Second,
	}), testutil.TestLogger(t))
	v := NewRPCValidator(client)

	t.Run("accepted token", func(t *testing.T) {
		payload, err := v.Validate(context.Background(), "good-token")
		assert.NoError(t, err)
		assert.Equal(t, userId.String(), payload.Sub)
		assert.Equal(t, "bob", payload.Username)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := v.Validate(context.Background(), "bad-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func Test_BearerToken(t *testing.T) {
	tcases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{
			name:   "authorization header",
			header: "Bearer abc123",
			want:   "abc123",
		},
		{
			name:   "malformed header yields nothing",
			header: "abc123",
			want:   "",
		},
		{
			name:  "query parameter fallback",
			query: "abc123",
			want:  "abc123",
		},
		{
			name:   "header wins over query",
			header: "Bearer fromheader",
			query:  "fromquery",
			want:   "fromheader",
		},
		{
			name: "no token",
			want: "",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			u := &url.URL{Path: "/ws"}
			if tc.query != "" {
				u.RawQuery = url.Values{"token": {tc.query}}.Encode()
			}
			r := &http.Request{URL: u, Header: http.Header{}}
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			assert.Equal(t, tc.want, BearerToken(r))
		})
	}
}
