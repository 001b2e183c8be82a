package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequireOpsToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		token  string
		header string
		code   int
	}{
		{"disabled", "", "Bearer anything", http.StatusNotFound},
		{"missing", "ops", "", http.StatusUnauthorized},
		{"wrong", "ops", "Bearer nope", http.StatusUnauthorized},
		{"valid", "ops", "Bearer ops", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ops", RequireOpsToken(tc.token), NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/ops", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "no-store, private", w.Header().Get("Cache-Control"))
			}
		})
	}
}
