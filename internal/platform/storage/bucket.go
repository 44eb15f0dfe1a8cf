package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

var (
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
	errNilClient     = errors.New("storage: client is required")
)

// Bucket writes rendered documents into a Cloud Storage bucket.
type Bucket struct {
	client *storage.Client
	name   string
}

// NewBucket constructs a Bucket bound to the named bucket.
func NewBucket(client *storage.Client, name string) (*Bucket, error) {
	if client == nil {
		return nil, errNilClient
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidBucket
	}
	return &Bucket{client: client, name: name}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Put writes the payload under the given object name with the supplied content type.
// The write is atomic: readers never observe a partially written object.
func (b *Bucket) Put(ctx context.Context, object, contentType string, payload []byte) (string, error) {
	if b == nil || b.client == nil {
		return "", errNilClient
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}

	writer := b.client.Bucket(b.name).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize object %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", b.name, object), nil
}
