package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAPIKeysHandler_RequiresUserIDQueryParam(t *testing.T) {
	db, _ := newSQLMock(t)
	apiKeys := repository.NewAPIKeyStore(db)

	req := httptest.NewRequest(http.MethodGet, "/admin/api-keys", nil)
	rr := httptest.NewRecorder()

	listAPIKeysHandler(apiKeys)(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListAPIKeysHandler_ListsByUser(t *testing.T) {
	db, mock := newSQLMock(t)
	apiKeys := repository.NewAPIKeyStore(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "key_digest", "prefix", "display_name", "scopes", "status", "expires_at", "last_used_at", "created_at"}).
		AddRow("key-1", "user-1", "digest", "ak_live", "ci key", "{read}", "active", nil, nil, time.Now())
	mock.ExpectQuery("SELECT id, user_id").WithArgs("user-1").WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/admin/api-keys?user_id=user-1", nil)
	rr := httptest.NewRecorder()

	listAPIKeysHandler(apiKeys)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ak_live")
}

func TestCreateAPIKeyHandler_ReturnsPlaintextKeyOnce(t *testing.T) {
	db, mock := newSQLMock(t)
	apiKeys := repository.NewAPIKeyStore(db)

	mock.ExpectExec("INSERT INTO api_keys").WillReturnResult(sqlmock.NewResult(1, 1))

	body := `{"user_id":"user-1","display_name":"ci key"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/api-keys", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	createAPIKeyHandler(apiKeys)(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"key":`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAPIKeyHandler(t *testing.T) {
	db, mock := newSQLMock(t)
	apiKeys := repository.NewAPIKeyStore(db)

	mock.ExpectExec("UPDATE api_keys SET status").WithArgs("key-1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/admin/api-keys/key-1/revoke", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "key-1"})
	rr := httptest.NewRecorder()

	revokeAPIKeyHandler(apiKeys)(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}
