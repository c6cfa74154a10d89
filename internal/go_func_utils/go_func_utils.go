package go_func_utils

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// SafeGo runs fn on a new goroutine. A panic is logged with its stack before
// being re-raised: the dashboard owns the terminal and would otherwise hide it.
func SafeGo(logger logrus.FieldLogger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("stack", string(debug.Stack())).Errorf("PANIC: %v", r)
				panic(r)
			}
		}()
		fn()
	}()
}

// Recover calls fn and converts a panic into a logged error instead of
// unwinding the caller. It reports whether fn panicked.
func Recover(logger logrus.FieldLogger, what string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			logger.WithField("stack", string(debug.Stack())).Errorf("%s: recovered panic: %v", what, r)
		}
	}()
	fn()
	return false
}
