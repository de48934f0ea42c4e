package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recoveryRouter(logBuffer *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(logBuffer, nil))

	router := gin.New()
	router.Use(Recovery(logger))
	router.Use(CorrelationID())
	router.Use(UserID())
	router.POST("/service-batches/:id/post", func(c *gin.Context) {
		panic("cheque printer on fire")
	})
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return router
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Run("PanicBecomesEnvelope", func(t *testing.T) {
		var logBuffer bytes.Buffer
		router := recoveryRouter(&logBuffer)

		req := httptest.NewRequest(http.MethodPost, "/service-batches/b-1/post", nil)
		req.Header.Set(CorrelationIDHeader, "req-77")
		req.Header.Set(UserIDHeader, "clerk@facility")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)

		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
			CorrelationID string `json:"correlation_id"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "printer", "panic values are not leaked")
		assert.Equal(t, "req-77", body.CorrelationID)

		logOutput := logBuffer.String()
		assert.Contains(t, logOutput, `"level":"ERROR"`)
		assert.Contains(t, logOutput, `"msg":"Panic recovered"`)
		assert.Contains(t, logOutput, `"error":"cheque printer on fire"`)
		assert.Contains(t, logOutput, `"stack":`)
		assert.Contains(t, logOutput, `"route":"/service-batches/:id/post"`)
		assert.Contains(t, logOutput, `"user_id":"clerk@facility"`)
		assert.Contains(t, logOutput, `"correlation_id":"req-77"`)
	})

	t.Run("NoPanicNoEffect", func(t *testing.T) {
		var logBuffer bytes.Buffer
		router := recoveryRouter(&logBuffer)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, logBuffer.String())
	})
}
