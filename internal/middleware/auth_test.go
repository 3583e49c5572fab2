package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/middleware"
)

const testSecret = "local-dev-secret" // совпадает с ключом по умолчанию

func signToken(t *testing.T, memberID string, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"member_id": memberID,
		"exp":       expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestGetMemberIDFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
		found    bool
	}{
		{
			name:     "Идентификатор присутствует",
			ctx:      context.WithValue(context.Background(), middleware.MemberIDKey, "alice"),
			expected: "alice",
			found:    true,
		},
		{
			name:     "Идентификатор отсутствует",
			ctx:      context.Background(),
			expected: "",
			found:    false,
		},
		{
			name:     "Пустой идентификатор",
			ctx:      context.WithValue(context.Background(), middleware.MemberIDKey, ""),
			expected: "",
			found:    false,
		},
		{
			name:     "Значение неверного типа",
			ctx:      context.WithValue(context.Background(), middleware.MemberIDKey, 42),
			expected: "",
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memberID, ok := middleware.GetMemberIDFromContext(tt.ctx)
			assert.Equal(t, tt.expected, memberID)
			assert.Equal(t, tt.found, ok)
		})
	}
}

func TestAuthenticator(t *testing.T) {
	// Обработчик за middleware возвращает идентификатор из контекста.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memberID, ok := middleware.GetMemberIDFromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(memberID))
	})
	handler := middleware.Authenticator(next)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Валидный токен",
			authHeader: "Bearer " + signToken(t, "alice", testSecret, time.Now().Add(time.Hour)),
			wantStatus: http.StatusOK,
			wantBody:   "alice",
		},
		{
			name:       "Заголовок отсутствует",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Неверный формат заголовка",
			authHeader: "Token abc",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Чужая подпись",
			authHeader: "Bearer " + signToken(t, "alice", "другой-ключ", time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Истекший токен",
			authHeader: "Bearer " + signToken(t, "alice", testSecret, time.Now().Add(-time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Токен без идентификатора участника",
			authHeader: "Bearer " + signToken(t, "", testSecret, time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Мусор вместо токена",
			authHeader: "Bearer не-jwt-вовсе",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/vaults", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
