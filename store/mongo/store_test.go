//go:build integration

package mongo_test

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/claim/store"
	"github.com/xraph/claim/store/mongo"
	"github.com/xraph/claim/store/storetest"
)

// setupTestClient starts a MongoDB container and returns a connected client.
func setupTestClient(t *testing.T) *mongod.Client {
	t.Helper()

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("start mongodb container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	return client
}

func TestConformance(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) store.Store {
		db := client.Database("claim_test")
		if err := db.Drop(ctx); err != nil {
			t.Fatalf("drop database: %v", err)
		}
		s := mongo.New(db)
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}

func TestPing(t *testing.T) {
	client := setupTestClient(t)
	s := mongo.New(client.Database("claim_test"))
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
