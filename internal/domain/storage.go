package domain

import "context"

// ObjectStorage abstracts the blob store holding exhibit bytes. The
// integrity core only ever reads and writes whole objects by key.
type ObjectStorage interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
