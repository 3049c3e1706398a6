//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/google-cloud-cli:emulators"

// FirestoreContainer runs the Firestore emulator from the gcloud CLI image.
type FirestoreContainer struct {
	Container testcontainers.Container
	Host      string
	Client    *firestore.Client
}

// NewFirestoreContainer starts the emulator and returns a client bound to it
// through FIRESTORE_EMULATOR_HOST. Tests using it cannot run in parallel.
func NewFirestoreContainer(t *testing.T) *FirestoreContainer {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        firestoreEmulatorImage,
			ExposedPorts: []string{"8080/tcp"},
			Cmd:          []string{"gcloud", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080"},
			WaitingFor:   wait.ForLog("Dev App Server is now running").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v", err)
	}

	host, err := container.PortEndpoint(ctx, "8080/tcp", "")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get firestore emulator endpoint: %v", err)
	}
	t.Setenv("FIRESTORE_EMULATOR_HOST", host)

	client, err := firestore.NewClient(ctx, "frontdesk-test")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to create firestore client: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(context.Background())
	})

	return &FirestoreContainer{Container: container, Host: host, Client: client}
}
