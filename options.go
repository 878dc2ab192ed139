package chordtest

import (
	"time"

	"github.com/sirupsen/logrus"
)

type settings struct {
	logger    logrus.FieldLogger
	keepAlive time.Duration
}

// Option configures a [Scope].
type Option func(*settings)

// WithLogger sets where the scope logs task progress and failures. The default for [ForTest]
// is the test's own log; for [Enter] it is logrus' standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithKeepAlive sets how long an idle worker waits for another task before exiting. The
// default is one minute. It panics if d is not positive.
func WithKeepAlive(d time.Duration) Option {
	return func(s *settings) {
		if d <= 0 {
			panic("chordtest: keep-alive must be positive")
		}
		s.keepAlive = d
	}
}
