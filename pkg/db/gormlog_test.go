package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

func TestGormLogReportsFailuresAndSlowQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	gl := newGormLog(logger.New(logger.Options{ServiceName: "db-test", Output: buf}), 100*time.Millisecond)
	stmt := func() (string, int64) { return "SELECT * FROM orders", 3 }
	ctx := context.Background()

	gl.Trace(ctx, time.Now(), stmt, nil)
	gl.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast or not-found queries must stay quiet, got %s", buf.String())
	}

	gl.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if !strings.Contains(buf.String(), "slow query") || !strings.Contains(buf.String(), "SELECT * FROM orders") {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}

	buf.Reset()
	gl.Trace(ctx, time.Now(), stmt, errors.New("relation does not exist"))
	if !strings.Contains(buf.String(), "query failed") {
		t.Fatalf("expected failure entry, got %s", buf.String())
	}

	buf.Reset()
	gl.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("ignored"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode must not log, got %s", buf.String())
	}
}

func TestGormLogWithoutLoggerDiscards(t *testing.T) {
	if newGormLog(nil, time.Second) != gormlogger.Discard {
		t.Fatal("expected discard logger")
	}
}
