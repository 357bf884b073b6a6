package rest_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	env := newEnv(t)

	w := get(env.r, "/api/users/4")
	require.Equal(t, http.StatusOK, w.Code)
	u := decode[map[string]interface{}](t, w)
	assert.Equal(t, "aarav", u["username"])
	assert.Equal(t, "CS004", u["studentId"])
	assert.Equal(t, "assets/10.jpg", u["profileImage"])
	assert.NotContains(t, u, "password")
}

func TestGetUser_NotFound(t *testing.T) {
	env := newEnv(t)

	w := get(env.r, "/api/users/99")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", message(t, w))
}

func TestGetUser_BadID(t *testing.T) {
	env := newEnv(t)

	w := get(env.r, "/api/users/abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid id", message(t, w))
}

func TestUpdatePassword(t *testing.T) {
	env := newEnv(t)

	w := doJSON(env.r, http.MethodPatch, "/api/users/1/password", map[string]string{"newPassword": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Password updated successfully", message(t, w))

	w = postJSON(env.r, "/api/auth/login", map[string]string{
		"username": "Hafij", "studentId": "115002", "password": "1234",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = postJSON(env.r, "/api/auth/login", map[string]string{
		"username": "Hafij", "studentId": "115002", "password": "s3cret",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdatePassword_Missing(t *testing.T) {
	env := newEnv(t)

	w := doJSON(env.r, http.MethodPatch, "/api/users/1/password", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "New password is required", message(t, w))

	w = doJSON(env.r, http.MethodPatch, "/api/users/42/password", map[string]string{"newPassword": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlaceholder(t *testing.T) {
	env := newEnv(t)

	w := get(env.r, "/api/placeholder/300/200")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://via.placeholder.com/300x200", w.Header().Get("Location"))

	w = get(env.r, "/api/placeholder/wide/200")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
