package redisstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/adapters/repository/redisstore"
	"github.com/okian/kudos/internal/adapters/repository/storetest"
	. "github.com/smartystreets/goconvey/convey"
)

// KUDOS_TEST_REDIS_ADDR points the suite at a disposable Redis instance.
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("KUDOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KUDOS_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestRedisStore(t *testing.T) {
	addr := redisAddr(t)
	storetest.Run(t, func() repository.Store {
		// A fresh namespace per store keeps runs independent.
		s, err := redisstore.Open(context.Background(), addr, redisstore.WithNamespace("kudos-test-"+uuid.NewString()))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	})
}

func TestRedisOpen(t *testing.T) {
	Convey("Given no address", t, func() {
		_, err := redisstore.Open(context.Background(), "")
		So(err, ShouldNotBeNil)
	})
}
