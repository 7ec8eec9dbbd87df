// Package datasource defines where batches of source documents come from.
// The fetch layer that talks to the commerce API drops documents into files;
// implementations here read them back.
package datasource

import (
	"context"
	"io"
)

// Source is one readable input of JSON documents.
type Source interface {
	// Name identifies the input in logs and errors.
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}
