package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/api/response"
	"github.com/kiranshivaraju/logresolver/internal/apikey"
	"github.com/kiranshivaraju/logresolver/internal/store"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// KeyStore manages API keys.
type KeyStore interface {
	apikey.Store
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type createdKey struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key appears only in this response.
func NewCreateKeyHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			badRequest(w, err.Error())
			return
		}

		key, raw, err := apikey.Issue(r.Context(), keys, body.Name, "", body.Scopes)
		if errors.Is(err, apikey.ErrInvalidKey) {
			badRequest(w, err.Error())
			return
		}
		if err != nil {
			internalError(w, r, err)
			return
		}
		response.Created(w, createdKey{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := keys.ListAPIKeys(r.Context())
		if err != nil {
			internalError(w, r, err)
			return
		}
		if list == nil {
			list = []*models.APIKey{}
		}
		response.JSON(w, list)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for
// DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "keyID")
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		err = keys.RevokeAPIKey(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found", nil)
			return
		}
		if err != nil {
			internalError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
