package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"todonest/internal/model"
	"todonest/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

type mockResolver struct {
	findFunc func(email string) (*model.User, error)
}

func (m *mockResolver) FindByEmail(email string) (*model.User, error) {
	return m.findFunc(email)
}

var errUserMissing = errors.New("user not found")

func newAuthRouter(issuer *token.Issuer, users UserResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(issuer, users))
	r.GET("/protected", func(c *gin.Context) {
		user := c.MustGet("user").(*model.User)
		c.JSON(http.StatusOK, gin.H{"email": user.Email})
	})
	return r
}

func doAuthed(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	issuer := token.NewIssuer("test_secret", time.Minute, time.Hour)
	users := &mockResolver{
		findFunc: func(email string) (*model.User, error) {
			if email == "alice@example.com" {
				return &model.User{ID: 1, Email: email, IsVerified: true}, nil
			}
			return nil, errUserMissing
		},
	}
	r := newAuthRouter(issuer, users)

	access, refresh, err := issuer.Pair("alice@example.com")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"refresh token rejected", "Bearer " + refresh, http.StatusUnauthorized},
		{"access token accepted", "Bearer " + access, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doAuthed(r, tc.header)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_DeletedUser(t *testing.T) {
	issuer := token.NewIssuer("test_secret", time.Minute, time.Hour)
	users := &mockResolver{
		findFunc: func(email string) (*model.User, error) {
			return nil, errUserMissing
		},
	}
	r := newAuthRouter(issuer, users)

	access, _, err := issuer.Pair("ghost@example.com")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	w := doAuthed(r, "Bearer "+access)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", w.Code)
	}
}
