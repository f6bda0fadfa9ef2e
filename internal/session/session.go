package session

import (
	"github.com/google/uuid"

	"chat-gateway/internal/storage"
)

const storeKey = "session_id"

// ID returns the session identity, generating and persisting a fresh UUID on
// first use. The identity is immutable after creation and is used purely as
// a correlation key, never for authorization.
func ID(store storage.Store) (string, error) {
	data, err := store.Load(storeKey)
	if err != nil {
		return "", err
	}
	if len(data) > 0 {
		if id, err := uuid.ParseBytes(data); err == nil {
			return id.String(), nil
		}
		// Malformed state is replaced, not fatal.
	}
	id := uuid.NewString()
	if err := store.Save(storeKey, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
