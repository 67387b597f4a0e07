package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// stubClient fakes the two commands RecordFiring issues.
type stubClient struct {
	goredis.Cmdable

	setnxResult bool
	setnxErr    error
	zaddErr     error
}

func (c *stubClient) SetNX(_ context.Context, _ string, _ interface{}, _ time.Duration) *goredis.BoolCmd {
	return goredis.NewBoolResult(c.setnxResult, c.setnxErr)
}

func (c *stubClient) ZAdd(_ context.Context, _ string, _ ...goredis.Z) *goredis.IntCmd {
	return goredis.NewIntResult(0, c.zaddErr)
}

func quietStore(c goredis.Cmdable) *Store {
	return New(c, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRecordFiring_AlreadyFired(t *testing.T) {
	s := quietStore(&stubClient{setnxResult: false})

	recorded, err := s.RecordFiring(context.Background(), "rule-1", "task-1", time.Now())
	if err != nil {
		t.Fatalf("record firing: %v", err)
	}
	if recorded {
		t.Fatal("recorded = true for a pair that already fired")
	}
}

func TestRecordFiring_GuardErrorPropagates(t *testing.T) {
	s := quietStore(&stubClient{setnxErr: errors.New("connection reset")})

	recorded, err := s.RecordFiring(context.Background(), "rule-1", "task-1", time.Now())
	if err == nil {
		t.Fatal("expected error from failed guard write")
	}
	if recorded {
		t.Fatal("recorded = true when the guard write failed")
	}
}

func TestRecordFiring_IndexErrorDoesNotAbort(t *testing.T) {
	// Once the guard key is set the pair has fired; a failure writing the
	// listing index must not surface as an error, or the caller would
	// abort dispatch with the guard already committed and no jobs ever
	// created for the match.
	s := quietStore(&stubClient{setnxResult: true, zaddErr: errors.New("connection reset")})

	recorded, err := s.RecordFiring(context.Background(), "rule-1", "task-1", time.Now())
	if err != nil {
		t.Fatalf("record firing: %v", err)
	}
	if !recorded {
		t.Fatal("recorded = false after the guard write succeeded")
	}
}
