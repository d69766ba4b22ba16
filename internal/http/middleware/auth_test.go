package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, subject string, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func echoUserHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantUser, userID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestUserJWTAcceptsValidBearer(t *testing.T) {
	mw := UserJWT(testSecret)
	req := httptest.NewRequest(http.MethodGet, "/surfaces/x", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "user-1", testSecret))
	rec := httptest.NewRecorder()

	mw(echoUserHandler(t, "user-1")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserJWTAcceptsQueryToken(t *testing.T) {
	// Websocket upgrades cannot carry custom headers from a browser.
	mw := UserJWT(testSecret)
	req := httptest.NewRequest(http.MethodGet, "/surfaces/x/feed?access_token="+signedToken(t, "user-2", testSecret), nil)
	rec := httptest.NewRecorder()

	mw(echoUserHandler(t, "user-2")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserJWTRejections(t *testing.T) {
	passthrough := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	tests := []struct {
		name   string
		secret string
		setup  func(r *http.Request)
	}{
		{"missing header", testSecret, func(r *http.Request) {}},
		{"wrong secret", testSecret, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, "user-1", "other-secret"))
		}},
		{"empty subject", testSecret, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, "", testSecret))
		}},
		{"auth disabled", "", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, "user-1", testSecret))
		}},
		{"malformed token", testSecret, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not.a.jwt")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/surfaces/x", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			UserJWT(tt.secret)(passthrough).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestUserJWTRejectsNonHMACAlgorithm(t *testing.T) {
	// alg=none style tokens must not pass.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/surfaces/x", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	UserJWT(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
