package bunstore_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/xraph/claim"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store"
	bunstore "github.com/xraph/claim/store/bun"
	"github.com/xraph/claim/store/storetest"
)

// setupSQLiteStore opens a private in-memory SQLite database and returns a
// migrated Store.
func setupSQLiteStore(t *testing.T) *bunstore.Store {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Every connection to file::memory: is a separate database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	s := bunstore.New(db, bunstore.WithLogger(slog.Default()))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestConformanceSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return setupSQLiteStore(t)
	})
}

func TestMigrateIdempotent(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close leaves the caller's db open.
	if err := s.DB().PingContext(ctx); err != nil {
		t.Fatalf("db closed by store: %v", err)
	}
}

func TestTransitionUnknownTarget(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	j := storetest.NewJob("t", 1, storetest.Epoch)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := s.TransitionJob(ctx, job.Transition{JobID: j.ID, WorkerID: "w1", To: job.StatusPending, At: storetest.Epoch})
	if !errors.Is(err, claim.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestUnknownKind(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLock(ctx, lock.Kind("invoice"), storetest.NewJob("x", 0, storetest.Epoch).ID, "w1", storetest.Epoch, storetest.Epoch); !errors.Is(err, claim.ErrUnknownKind) {
		t.Fatalf("acquire err = %v, want ErrUnknownKind", err)
	}
	if _, err := s.SweepExpiredLocks(ctx, lock.Kind("invoice"), storetest.Epoch, storetest.Epoch); !errors.Is(err, claim.ErrUnknownKind) {
		t.Fatalf("sweep err = %v, want ErrUnknownKind", err)
	}
}

func TestLockedByStoredAsNull(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	j := storetest.NewJob("t", 1, storetest.Epoch)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var n int
	err := s.DB().NewSelect().
		TableExpr("claim_jobs").
		ColumnExpr("COUNT(*)").
		Where("locked_by IS NULL").
		Scan(ctx, &n)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows with NULL locked_by = %d, want 1", n)
	}
}
