package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrSessionNotFound) })

	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"client id kept", "req-123", true},
		{"missing", "", false},
		{"too long", strings.Repeat("a", 65), false},
		{"control chars", "a\tb", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("X-Request-ID", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, w.Header().Get("X-Request-ID"), body.Metadata.RequestID)
			if tc.keep {
				assert.Equal(t, tc.header, body.Metadata.RequestID)
			} else {
				assert.NotEqual(t, tc.header, body.Metadata.RequestID)
				assert.NotEmpty(t, body.Metadata.RequestID)
			}
			require.NotNil(t, body.Error)
			assert.Equal(t, ErrSessionNotFound, body.Error.Code)
			assert.Equal(t, GetMessage(ErrSessionNotFound), body.Error.Message)
			assert.False(t, body.Error.Retryable)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrAttemptLocked))
	assert.True(t, IsRetryable(ErrInternal))
	assert.False(t, IsRetryable(ErrNotInProgress))
	assert.False(t, IsRetryable(ErrValidation))

	body := NewErrorBody(ErrRateLimitExceeded)
	assert.True(t, body.Retryable)
	assert.Equal(t, GetMessage(ErrRateLimitExceeded), body.Message)
}
