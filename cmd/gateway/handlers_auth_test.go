package main

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T) (*auth.Authenticator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	signer := auth.NewSigner("a-test-secret-32-bytes-long-enough", 15*time.Minute, 168*time.Hour)
	a := auth.New(signer, unreachableCache(), repository.NewUserStore(db), repository.NewAPIKeyStore(db))
	return a, mock
}

func TestSignupHandler_CreatesUserAndIssuesTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	signer := auth.NewSigner("a-test-secret-32-bytes-long-enough", 15*time.Minute, 168*time.Hour)
	authenticator := auth.New(signer, unreachableCache(), repository.NewUserStore(db), repository.NewAPIKeyStore(db))
	users := repository.NewUserStore(db)

	mock.ExpectQuery("SELECT id, email").
		WithArgs("new@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := `{"email":"new@example.com","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	signupHandler(users, authenticator)(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), "access_token")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupHandler_RejectsDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	signer := auth.NewSigner("a-test-secret-32-bytes-long-enough", 15*time.Minute, 168*time.Hour)
	authenticator := auth.New(signer, unreachableCache(), repository.NewUserStore(db), repository.NewAPIKeyStore(db))
	users := repository.NewUserStore(db)

	rows := sqlmock.NewRows([]string{"id", "email", "password_digest", "role", "tier", "token_version", "created_at", "updated_at"}).
		AddRow("user-1", "dup@example.com", "digest", "user", "free", 1, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, email").WithArgs("dup@example.com").WillReturnRows(rows)

	body := `{"email":"dup@example.com","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	signupHandler(users, authenticator)(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSignupHandler_RejectsInvalidPayload(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	authenticator, _ := newTestAuthenticator(t)
	users := repository.NewUserStore(db)

	body := `{"email":"not-an-email","password":"short"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	signupHandler(users, authenticator)(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginHandler_RejectsWrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	digest, err := auth.HashPassword("correct-horse-battery")
	require.NoError(t, err)

	authenticator, _ := newTestAuthenticator(t)
	users := repository.NewUserStore(db)

	rows := sqlmock.NewRows([]string{"id", "email", "password_digest", "role", "tier", "token_version", "created_at", "updated_at"}).
		AddRow("user-1", "user@example.com", digest, "user", "free", 1, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, email").WithArgs("user@example.com").WillReturnRows(rows)

	body := `{"email":"user@example.com","password":"wrong-password"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	loginHandler(users, authenticator)(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginHandler_SucceedsWithCorrectPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	digest, err := auth.HashPassword("correct-horse-battery")
	require.NoError(t, err)

	signer := auth.NewSigner("a-test-secret-32-bytes-long-enough", 15*time.Minute, 168*time.Hour)
	authenticator := auth.New(signer, unreachableCache(), repository.NewUserStore(db), repository.NewAPIKeyStore(db))
	users := repository.NewUserStore(db)

	rows := sqlmock.NewRows([]string{"id", "email", "password_digest", "role", "tier", "token_version", "created_at", "updated_at"}).
		AddRow("user-1", "user@example.com", digest, "user", "free", 1, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, email").WithArgs("user@example.com").WillReturnRows(rows)

	body := `{"email":"user@example.com","password":"correct-horse-battery"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	loginHandler(users, authenticator)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "access_token")
}

func TestRefreshHandler_RejectsMalformedToken(t *testing.T) {
	authenticator, _ := newTestAuthenticator(t)

	body := `{"refresh_token":"not-a-jwt"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	refreshHandler(authenticator)(rr, req)

	assert.NotEqual(t, http.StatusOK, rr.Code)
}

func TestLogoutHandler_RequiresBearerToken(t *testing.T) {
	authenticator, _ := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rr := httptest.NewRecorder()

	logoutHandler(authenticator)(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBearerTokenFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", bearerTokenFromHeader(req))

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerTokenFromHeader(req2))
}
