package go_func_utils

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestSafeGo_RunsFn(t *testing.T) {
	logger, _ := test.NewNullLogger()

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	SafeGo(logger, func() {
		defer wg.Done()
		ran = true
	})
	wg.Wait()
	assert.True(t, ran)
}

func TestRecover(t *testing.T) {
	logger, hook := test.NewNullLogger()

	assert.False(t, Recover(logger, "noop", func() {}))
	assert.Empty(t, hook.AllEntries())

	assert.True(t, Recover(logger, "callback", func() { panic("boom") }))
	if assert.Len(t, hook.AllEntries(), 1) {
		entry := hook.LastEntry()
		assert.Equal(t, logrus.ErrorLevel, entry.Level)
		assert.Contains(t, entry.Message, "callback: recovered panic: boom")
	}
}
