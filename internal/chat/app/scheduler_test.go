package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 測試 cron 表達式在登記時驗證
func TestScheduler_RegisterValidatesCron(t *testing.T) {
	s := NewScheduler()

	assert.NoError(t, s.Register("reconcile", "*/5 * * * *", func(ctx context.Context) error { return nil }))
	assert.NoError(t, s.Register("cleanup", "0 4 * * *", func(ctx context.Context) error { return nil }))

	err := s.Register("broken", "not a cron", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
