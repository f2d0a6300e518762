package handlers

import (
	"net/http"
	"testing"

	"taskboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_RegistersThenChecksPassword(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/login", "", gin.H{"username": " alice ", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[LoginResponse](t, w)
	assert.Equal(t, "alice", first.Username)
	assert.NotEmpty(t, first.UserID)
	assert.Equal(t, "Login successful", first.Message)

	claims, err := s.tokens.ValidateToken(first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, claims.UserID)

	var stored models.User
	require.NoError(t, s.db.First(&stored, "username = ?", "alice").Error)
	assert.NotEqual(t, "s3cret", stored.Password, "password is stored hashed")

	w = s.do(http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.UserID, decode[LoginResponse](t, w).UserID)

	w = s.do(http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"unauthorized"`)
}

func TestLogin_Rejects(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body gin.H
	}{
		{"missing password", gin.H{"username": "bob"}},
		{"missing username", gin.H{"password": "x"}},
		{"blank username", gin.H{"username": "   ", "password": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/login", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
