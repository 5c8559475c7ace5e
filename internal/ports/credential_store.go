package ports

import "context"

// CredentialStore is a persistent string key/value store. Get returns an
// error wrapping domain.ErrCredentialNotFound for missing keys.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// CredentialWatcher is implemented by stores that can report keys changed
// outside this process.
type CredentialWatcher interface {
	Watch(ctx context.Context, onChange func(key string)) error
}
