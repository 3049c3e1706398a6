// Package firebase initializes the Firebase Admin SDK and hands out the
// Firestore client and the storage bucket.
package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	gcs "cloud.google.com/go/storage"
	fb "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"frontdesk/internal/platform/config"
)

type App struct {
	app    *fb.App
	bucket string
}

// New initializes the SDK. With an emulator host set, no credentials are
// needed and FIRESTORE_EMULATOR_HOST is exported for the Firestore client.
func New(ctx context.Context, cfg config.Firebase) (*App, error) {
	var opts []option.ClientOption
	if cfg.EmulatorHost != "" {
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.EmulatorHost); err != nil {
			return nil, fmt.Errorf("set emulator host: %w", err)
		}
	} else if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := fb.NewApp(ctx, &fb.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return &App{app: app, bucket: cfg.StorageBucket}, nil
}

func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}
	return client, nil
}

// Bucket returns the configured storage bucket and its name.
func (a *App) Bucket(ctx context.Context) (*gcs.BucketHandle, string, error) {
	client, err := a.app.Storage(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("init firebase storage: %w", err)
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, "", fmt.Errorf("open storage bucket: %w", err)
	}
	return bucket, a.bucket, nil
}
