package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stackit/internal/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestParseVote(t *testing.T) {
	tests := []struct {
		body    string
		want    int
		wantErr bool
	}{
		{body: `{"value": 1}`, want: 1},
		{body: `{"value": -1}`, want: -1},
		{body: `{"vote": "up"}`, want: 1},
		{body: `{"vote": "DOWN"}`, want: -1},
		{body: `{"vote": "helpful"}`, want: 1},
		{body: `{"vote": "unhelpful"}`, want: -1},
		{body: `{"value": 0}`, wantErr: true},
		{body: `{"value": 2}`, wantErr: true},
		{body: `{"vote": "sideways"}`, wantErr: true},
		{body: `{}`, wantErr: true},
		{body: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			c, _ := newContext(http.MethodPost, "/", tt.body)
			got, err := parseVote(c)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindInvalidInput), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailMapsErrorKinds(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{apperr.NotFound("Question not found"), http.StatusNotFound, "Question not found"},
		{apperr.Forbidden("Not authorized"), http.StatusForbidden, "Not authorized"},
		{apperr.Conflict("Tag already exists"), http.StatusConflict, "Tag already exists"},
		{apperr.InvalidInput("Bad"), http.StatusBadRequest, "Bad"},
		// 基础设施错误不暴露细节
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "Server Error"},
	}
	for _, tt := range tests {
		c, w := newContext(http.MethodGet, "/", "")
		Fail(c, zap.NewNop(), tt.err)

		assert.Equal(t, tt.status, w.Code)
		var body struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, tt.message, body.Message)
		assert.True(t, c.IsAborted())
	}
}

func TestPageParams(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/?page=0&limit=500", "")
	page, limit := pageParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, limit)

	c, _ = newContext(http.MethodGet, "/", "")
	page, limit = pageParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, limit)

	c, _ = newContext(http.MethodGet, "/?page=3&limit=20", "")
	page, limit = pageParams(c)
	assert.Equal(t, 3, page)
	assert.Equal(t, 20, limit)
}
