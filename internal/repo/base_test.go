package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func TestNewBaseDefaultsTimeout(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db, 0)
	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
	if base.timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", base.timeout)
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	base := NewBase(newTestDB(t), time.Second)
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	if got := base.DB(ctx).Statement.Context.Value(key{}); got != "v" {
		t.Fatalf("expected bound context, got %v", got)
	}
}

func TestBoundedAppliesDeadline(t *testing.T) {
	base := NewBase(newTestDB(t), 20*time.Millisecond)
	err := base.Bounded(context.Background(), "check deadline", func(db *gorm.DB) error {
		if _, ok := db.Statement.Context.Deadline(); !ok {
			t.Fatal("expected deadline on bounded context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBoundedClassifiesErrors(t *testing.T) {
	base := NewBase(newTestDB(t), time.Second)

	err := base.Bounded(context.Background(), "lookup", func(*gorm.DB) error { return gorm.ErrRecordNotFound })
	if !errors.Is(err, gorm.ErrRecordNotFound) || pkgerrors.As(err) != nil {
		t.Fatalf("record not found should pass through untyped, got %v", err)
	}

	err = base.Bounded(context.Background(), "slow", func(*gorm.DB) error { return context.DeadlineExceeded })
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
