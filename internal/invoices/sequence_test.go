package invoices

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/dbtest"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

type fakeCounter struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func (f *fakeCounter) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.values == nil {
		f.values = map[string]int64{}
	}
	f.values[key]++
	return f.values[key], nil
}

func (f *fakeCounter) CounterKey(name string) string {
	return "fm:counter:" + name
}

func TestDBSequenceIncrementsFromOne(t *testing.T) {
	client, _ := dbtest.Client(t)
	seq := NewDBSequence()
	ctx := context.Background()

	var got []int64
	for i := 0; i < 3; i++ {
		err := client.WithTx(ctx, func(tx *gorm.DB) error {
			value, err := seq.Next(ctx, tx, SequenceScope)
			got = append(got, value)
			return err
		})
		if err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	for i, value := range got {
		if value != int64(i+1) {
			t.Fatalf("expected %d, got %d", i+1, value)
		}
	}
}

func TestDBSequenceRollbackReleasesValue(t *testing.T) {
	client, _ := dbtest.Client(t)
	seq := NewDBSequence()
	ctx := context.Background()

	_ = client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := seq.Next(ctx, tx, SequenceScope); err != nil {
			t.Fatalf("next: %v", err)
		}
		return errors.New("abort")
	})
	var value int64
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		value, err = seq.Next(ctx, tx, SequenceScope)
		return err
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if value != 1 {
		t.Fatalf("expected rolled back value to be reissued, got %d", value)
	}
}

func TestRedisSequence(t *testing.T) {
	store := &fakeCounter{}
	seq := NewRedisSequence(store)
	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(context.Background(), nil, SequenceScope)
		if err != nil || got != want {
			t.Fatalf("expected %d, got %d (%v)", want, got, err)
		}
	}
	if store.values["fm:counter:invoice"] != 3 {
		t.Fatalf("expected counter key to be namespaced")
	}

	store.err = errors.New("connection refused")
	_, err := seq.Next(context.Background(), nil, SequenceScope)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewSequenceSelectsBackend(t *testing.T) {
	if seq, err := NewSequence(config.InvoiceConfig{SequenceBackend: "db"}, nil); err != nil {
		t.Fatalf("db backend: %v", err)
	} else if _, ok := seq.(*DBSequence); !ok {
		t.Fatalf("expected DBSequence, got %T", seq)
	}
	if seq, err := NewSequence(config.InvoiceConfig{SequenceBackend: "redis"}, &fakeCounter{}); err != nil {
		t.Fatalf("redis backend: %v", err)
	} else if _, ok := seq.(*RedisSequence); !ok {
		t.Fatalf("expected RedisSequence, got %T", seq)
	}
	if _, err := NewSequence(config.InvoiceConfig{SequenceBackend: "redis"}, nil); err == nil {
		t.Fatalf("expected error without redis client")
	}
	if _, err := NewSequence(config.InvoiceConfig{SequenceBackend: "mongo"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
