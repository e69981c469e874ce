package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/diagnosis/buildhub/services/bookings/internal/service"
)

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) CleanupExpired(ctx context.Context) (int64, error) {
	if c.calls.Add(1) == 1 {
		return 0, errors.New("db down")
	}
	return 3, nil
}

func TestIdempotencyJanitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cleaner := &countingCleaner{}

	done := make(chan error, 1)
	go func() { done <- service.RunIdempotencyJanitor(ctx, cleaner, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
