package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tuuziane/marketplace/internal/auth"
)

const testSecret = "test-secret"

func TestParseToken_RoundTrip(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	token, err := auth.NewToken(auth.Identity{UserID: userID, Role: auth.RoleBodaboda}, testSecret)
	assert.NoError(t, err)

	id, err := auth.ParseToken(token, testSecret)
	assert.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, auth.RoleBodaboda, id.Role)
	assert.True(t, id.IsRider())
}

func TestParseToken_WrongSecret(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	token, err := auth.NewToken(auth.Identity{UserID: userID, Role: auth.RoleCustomer}, testSecret)
	assert.NoError(t, err)

	_, err = auth.ParseToken(token, "other-secret")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	token, err := auth.NewToken(auth.Identity{UserID: userID, Role: auth.RoleCustomer}, testSecret)
	assert.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectIdentity bool
	}{
		{name: "valid_token", header: "Bearer " + token, expectedStatus: http.StatusOK, expectIdentity: true},
		{name: "missing_header", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "not_bearer", header: "Basic abc", expectedStatus: http.StatusUnauthorized},
		{name: "garbage_token", header: "Bearer not-a-jwt", expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotIdentity bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, ok := auth.FromContext(r.Context())
				gotIdentity = ok && id.UserID == userID
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			auth.Middleware(testSecret)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectIdentity, gotIdentity)
		})
	}
}
