// Package cache provides the byte cache used for order reads.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores serialized values by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type nopCache struct{}

// NewNop returns a cache that never stores anything.
func NewNop() Cache {
	return nopCache{}
}

func (nopCache) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (nopCache) Set(context.Context, string, []byte) error   { return nil }
func (nopCache) Delete(context.Context, string) error        { return nil }
func (nopCache) Close() error                                { return nil }
