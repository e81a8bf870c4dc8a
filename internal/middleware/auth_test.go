package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-journey/internal/auth"
	"github.com/ukydev/fleet-journey/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestAuth(t *testing.T) (*auth.Service, *AuthMiddleware) {
	t.Helper()
	authService, err := auth.NewService("test-secret", time.Hour)
	require.NoError(t, err)
	return authService, NewAuthMiddleware(authService)
}

func tokenFor(t *testing.T, s *auth.Service, role models.Role) string {
	t.Helper()
	token, err := s.GenerateToken(&models.User{
		ID:        primitive.NewObjectID(),
		Username:  string(role) + "-user",
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
	})
	require.NoError(t, err)
	return token
}

// serve runs h behind Authenticate and reports whether h was reached.
func serve(m *AuthMiddleware, h http.Handler, path, token string) (*httptest.ResponseRecorder, bool) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		h.ServeHTTP(w, r)
	})
	m.Authenticate(inner).ServeHTTP(w, req)
	return w, called
}

var ok200 = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService, m := newTestAuth(t)

	t.Run("valid token", func(t *testing.T) {
		token := tokenFor(t, authService, models.RoleDriver)
		check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, "driver-user", claims.Username)
			assert.Equal(t, "Test User", claims.Name)
			assert.Equal(t, models.RoleDriver, claims.Role)
		})
		w, called := serve(m, check, "/api/journey", token)
		assert.True(t, called)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		w, called := serve(m, ok200, "/api/journey", "")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"Authorization header required"}`, w.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		w, called := serve(m, ok200, "/api/journey", "invalid-token")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid token")
	})

	t.Run("token from another secret", func(t *testing.T) {
		other, err := auth.NewService("another-secret", time.Hour)
		require.NoError(t, err)
		w, called := serve(m, ok200, "/api/journey", tokenFor(t, other, models.RoleDriver))
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	for _, path := range []string{"/api/auth/login", "/api/auth/register", "/health"} {
		t.Run("public "+path, func(t *testing.T) {
			w, called := serve(m, ok200, path, "")
			assert.True(t, called)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	t.Run("profile is not public", func(t *testing.T) {
		_, called := serve(m, ok200, "/api/auth/profile", "")
		assert.False(t, called)
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	authService, m := newTestAuth(t)

	tests := []struct {
		name     string
		role     models.Role
		required models.Role
		want     int
	}{
		{"admin passes manager check", models.RoleAdmin, models.RoleManager, http.StatusOK},
		{"manager passes manager check", models.RoleManager, models.RoleManager, http.StatusOK},
		{"manager fails admin check", models.RoleManager, models.RoleAdmin, http.StatusForbidden},
		{"driver fails manager check", models.RoleDriver, models.RoleManager, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := serve(m, m.RequireRole(tt.required)(ok200), "/api/x", tokenFor(t, authService, tt.role))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	authService, m := newTestAuth(t)

	tests := []struct {
		name       string
		role       models.Role
		permission string
		want       int
	}{
		{"driver drives", models.RoleDriver, models.PermDrive, http.StatusOK},
		{"driver cannot list journeys", models.RoleDriver, models.PermViewJourneys, http.StatusForbidden},
		{"manager lists journeys", models.RoleManager, models.PermViewJourneys, http.StatusOK},
		{"manager does not drive", models.RoleManager, models.PermDrive, http.StatusForbidden},
		{"viewer cannot manage vehicles", models.RoleViewer, models.PermManageVehicles, http.StatusForbidden},
		{"admin manages users", models.RoleAdmin, models.PermManageUsers, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := serve(m, m.RequirePermission(tt.permission)(ok200), "/api/x", tokenFor(t, authService, tt.role))
			assert.Equal(t, tt.want, w.Code)
		})
	}

	t.Run("no claims in context", func(t *testing.T) {
		w := httptest.NewRecorder()
		m.RequirePermission(models.PermDrive)(ok200).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetUserFromContext(t *testing.T) {
	claims := &models.Claims{
		UserID:   "test-id",
		Username: "testuser",
		Role:     models.RoleDriver,
	}

	got, ok := GetUserFromContext(WithUser(context.Background(), claims))
	assert.True(t, ok)
	assert.Equal(t, claims, got)

	_, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)

	_, ok = GetUserFromContext(context.WithValue(context.Background(), "user", claims))
	assert.False(t, ok, "plain string keys do not collide with the middleware key")
}
