// Package blob stores encrypted file bodies. The relay never sees plaintext,
// so objects are opaque bytes plus the uploader's declared content type.
package blob

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

type Store interface {
	// Put stores data under key and returns the locator clients use to fetch it.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
}

const defaultContentType = "application/octet-stream"
