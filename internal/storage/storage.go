// Package storage provides object storage for source documents and
// generated artifacts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrObjectNotFound indicates the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore reads and writes objects addressed by bucket and key.
type ObjectStore interface {
	// Get returns the object's content.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put writes the object, overwriting any existing content.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// List returns the keys under the given prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ObjectURI renders the canonical URI for a stored object.
func ObjectURI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// ParseURI splits an object URI into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an object uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed object uri: %q", uri)
	}
	return bucket, key, nil
}
