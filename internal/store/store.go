// Package store provides access to the path-addressed JSON tree that holds
// tickets, the ticket counter and user preferences.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when nothing is stored at a path.
var ErrNotFound = errors.New("store: path not found")

// Entry is a direct child of a node.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// Store is a remote JSON tree. It offers whole-value writes only: there are
// no transactions and no server-side increments.
type Store interface {
	// Get returns the JSON value at path, or ErrNotFound.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// GetAll returns the children of path ordered by key. An absent path
	// yields an empty slice.
	GetAll(ctx context.Context, path string) ([]Entry, error)
	// Put overwrites the value at path.
	Put(ctx context.Context, path string, value any) error
	// Delete removes path. Deleting an absent path is not an error.
	Delete(ctx context.Context, path string) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Join builds a slash separated path, skipping empty segments.
func Join(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
