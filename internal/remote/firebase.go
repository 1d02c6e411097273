package remote

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

const defaultPollInterval = 15 * time.Second

// FirebaseStore implements Store on top of the Firebase Realtime Database.
// The admin SDK exposes no streaming listener, so Subscribe polls the subtree
// on a short interval and fires the callback when the value changes; the
// Store interface keeps push semantics so the implementation stays swappable.
type FirebaseStore struct {
	client       *db.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewFirebaseStore initialises the Firebase app from a credentials file and
// connects to the given database URL.
func NewFirebaseStore(ctx context.Context, credentialsFile, databaseURL string, pollInterval time.Duration, logger *slog.Logger) (*FirebaseStore, error) {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL},
		option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

	return &FirebaseStore{
		client:       client,
		pollInterval: pollInterval,
		logger:       logger.With("component", "firebase-store"),
	}, nil
}

type firebaseSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *firebaseSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Subscribe polls the subtree and invokes onChange with the initial snapshot
// and again whenever the value differs from the previous poll. Poll failures
// are logged and retried on the next tick; the last delivered snapshot stays
// authoritative in the meantime.
func (s *FirebaseStore) Subscribe(ctx context.Context, path string, onChange func(Snapshot)) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &firebaseSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)

		var last any
		seeded := false

		poll := func() {
			var value any
			if err := s.client.NewRef(path).Get(subCtx, &value); err != nil {
				if subCtx.Err() == nil {
					s.logger.Warn("listener poll failed", "path", path, "error", err)
				}
				return
			}
			if seeded && reflect.DeepEqual(last, value) {
				return
			}
			last = value
			seeded = true
			onChange(NewSnapshot(value))
		}

		poll()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return sub, nil
}

// PullOnce reads a subtree once.
func (s *FirebaseStore) PullOnce(ctx context.Context, path string) (Snapshot, error) {
	var value any
	if err := s.client.NewRef(path).Get(ctx, &value); err != nil {
		return Snapshot{}, fmt.Errorf("failed to pull %s: %w", path, err)
	}
	return NewSnapshot(value), nil
}

// Put replaces the value at path.
func (s *FirebaseStore) Put(ctx context.Context, path string, value any) error {
	if err := s.client.NewRef(path).Set(ctx, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Update merges the given fields into the node at path.
func (s *FirebaseStore) Update(ctx context.Context, path string, values map[string]any) error {
	if err := s.client.NewRef(path).Update(ctx, values); err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

// Delete removes the node at path.
func (s *FirebaseStore) Delete(ctx context.Context, path string) error {
	if err := s.client.NewRef(path).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

var _ Store = (*FirebaseStore)(nil)
