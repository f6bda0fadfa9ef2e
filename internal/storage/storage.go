package storage

// Store abstracts the persistence side-channel used for rate-limit history,
// session identity and conversation history. Implementations can be
// file-based, database, etc. Load returns (nil, nil) when the key has never
// been saved. Implementations must be safe for concurrent use.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Delete(key string) error
}
