package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/forecastify/api/pkg/models"
)

type fakeKeyStore struct {
	created []*models.APIKey
	revoked []uuid.UUID
	keys    []*models.APIKey
}

func (f *fakeKeyStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	f.created = append(f.created, key)
	return nil
}

func (f *fakeKeyStore) ListAPIKeys(context.Context, uuid.UUID) ([]*models.APIKey, error) {
	return f.keys, nil
}

func (f *fakeKeyStore) RevokeAPIKey(_ context.Context, id uuid.UUID, _ uuid.UUID) error {
	f.revoked = append(f.revoked, id)
	return nil
}

func TestGenerateAPIKey(t *testing.T) {
	raw, prefix, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "fc_"))
	assert.Equal(t, raw[:8], prefix)
	assert.NotContains(t, hash, raw)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)))

	// Keys are unique across calls.
	raw2, _, _, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}

func TestCreateKeyHandler(t *testing.T) {
	st := &fakeKeyStore{}
	body := bytes.NewBufferString(`{"name": "ci-uploader"}`)
	req := authedRequest(http.MethodPost, "/api/v1/admin/keys", body, uuid.New())

	rec := httptest.NewRecorder()
	NewCreateKeyHandler(st)(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, st.created, 1)
	assert.Equal(t, "ci-uploader", st.created[0].Name)
	assert.Equal(t, []string{"upload", "read"}, st.created[0].Scopes)

	var env struct {
		Data struct {
			Key       string `json:"key"`
			KeyPrefix string `json:"key_prefix"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, strings.HasPrefix(env.Data.Key, "fc_"))
	assert.Equal(t, env.Data.Key[:8], env.Data.KeyPrefix)
}

func TestCreateKeyHandler_MissingName(t *testing.T) {
	body := bytes.NewBufferString(`{}`)
	req := authedRequest(http.MethodPost, "/api/v1/admin/keys", body, uuid.New())

	rec := httptest.NewRecorder()
	NewCreateKeyHandler(&fakeKeyStore{})(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestListKeysHandler_EmptyIsArray(t *testing.T) {
	req := authedRequest(http.MethodGet, "/api/v1/admin/keys", nil, uuid.New())

	rec := httptest.NewRecorder()
	NewListKeysHandler(&fakeKeyStore{})(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": []}`, rec.Body.String())
}
