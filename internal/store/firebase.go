package store

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// FirebaseConfig holds Realtime Database connection settings.
type FirebaseConfig struct {
	DatabaseURL     string
	CredentialsFile string
}

// Firebase is a Store backed by the Firebase Realtime Database.
type Firebase struct {
	client *db.Client
}

// NewFirebase connects to the Realtime Database using a service account key.
func NewFirebase(ctx context.Context, cfg FirebaseConfig) (*Firebase, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{
		DatabaseURL: cfg.DatabaseURL,
	}, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

	return &Firebase{client: client}, nil
}

// Get implements Store.
func (f *Firebase) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := f.client.NewRef(path).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	return raw, nil
}

// GetAll implements Store.
func (f *Firebase) GetAll(ctx context.Context, path string) ([]Entry, error) {
	nodes, err := f.client.NewRef(path).OrderByKey().GetOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		var raw json.RawMessage
		if err := n.Unmarshal(&raw); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", path, n.Key(), err)
		}
		if isNull(raw) {
			continue
		}
		entries = append(entries, Entry{Key: n.Key(), Value: raw})
	}
	return entries, nil
}

// Put implements Store.
func (f *Firebase) Put(ctx context.Context, path string, value any) error {
	if err := f.client.NewRef(path).Set(ctx, value); err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Delete implements Store.
func (f *Firebase) Delete(ctx context.Context, path string) error {
	if err := f.client.NewRef(path).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Ping implements Store by reading the counter node.
func (f *Firebase) Ping(ctx context.Context) error {
	var v any
	if err := f.client.NewRef("ticketCounter").Get(ctx, &v); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
