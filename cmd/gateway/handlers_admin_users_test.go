package main

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestListUsersHandler(t *testing.T) {
	db, mock := newSQLMock(t)
	users := repository.NewUserStore(db)

	rows := sqlmock.NewRows([]string{"id", "email", "password_digest", "role", "tier", "token_version", "created_at", "updated_at"}).
		AddRow("user-1", "a@example.com", "digest", "user", "free", 1, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, email").WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	rr := httptest.NewRecorder()

	listUsersHandler(users)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "a@example.com")
}

func TestCreateUserHandler_DefaultsRoleAndTier(t *testing.T) {
	db, mock := newSQLMock(t)
	users := repository.NewUserStore(db)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "new@example.com", sqlmock.AnyArg(), domain.RoleUser, domain.TierFree, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := `{"email":"new@example.com","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	createUserHandler(users)(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserHandler_NotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	users := repository.NewUserStore(db)

	mock.ExpectQuery("SELECT id, email").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/admin/users/missing", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})
	rr := httptest.NewRecorder()

	getUserHandler(users)(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPatchUserHandler_UpdatesRole(t *testing.T) {
	db, mock := newSQLMock(t)
	users := repository.NewUserStore(db)

	getRows := sqlmock.NewRows([]string{"id", "email", "password_digest", "role", "tier", "token_version", "created_at", "updated_at"}).
		AddRow("user-1", "a@example.com", "digest", "user", "free", 1, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, email").WithArgs("user-1").WillReturnRows(getRows)
	mock.ExpectExec("UPDATE users SET email").WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"role":"admin"}`
	req := httptest.NewRequest(http.MethodPatch, "/admin/users/user-1", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"id": "user-1"})
	rr := httptest.NewRecorder()

	patchUserHandler(users)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Role":"admin"`)
}

func TestDeleteUserHandler(t *testing.T) {
	db, mock := newSQLMock(t)
	users := repository.NewUserStore(db)

	mock.ExpectExec("DELETE FROM users").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/user-1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "user-1"})
	rr := httptest.NewRecorder()

	deleteUserHandler(users)(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRevokeUserHandler_BumpsTokenVersionAndWritesAudit(t *testing.T) {
	db, mock := newSQLMock(t)
	users := repository.NewUserStore(db)
	auditLogs := repository.NewAuditLogStore(db)

	versionRows := sqlmock.NewRows([]string{"token_version"}).AddRow(2)
	mock.ExpectQuery("UPDATE users SET token_version").WithArgs("user-1").WillReturnRows(versionRows)
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	req := httptest.NewRequest(http.MethodPost, "/admin/users/user-1/revoke", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "user-1"})
	rr := httptest.NewRecorder()

	revokeUserHandler(users, auditLogs)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"token_version":2`)
}
