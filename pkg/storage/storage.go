// Package storage abstracts durable blob storage for receipt bytes. The
// backend is a swappable capability: Put persists bytes under a namespaced
// path and returns a URL, Get resolves a URL produced by Put back into bytes.
package storage

import "context"

type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, url string) ([]byte, error)
}
