package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/store"
	"github.com/xraph/openshelf/store/mongo"
	"github.com/xraph/openshelf/store/storetest"
)

// The suite needs a replica set for transactions:
//
//	OPENSHELF_TEST_MONGO_URI="mongodb://localhost:27017/?replicaSet=rs0" go test ./store/mongo
func TestConformance(t *testing.T) {
	uri := os.Getenv("OPENSHELF_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("OPENSHELF_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		// A fresh database per subtest keeps the suite isolated.
		name := "openshelf_test_" + id.NewMintID().String()
		s, err := mongo.Open(ctx, uri, name)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		t.Cleanup(func() {
			_ = s.DB().Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}
