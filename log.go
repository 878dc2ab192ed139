package chordtest

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// testLogWriter sends log output to t.Log while the test is running. Once the test's scope
// has exited, writes go to stderr instead: workers stuck past a drain timeout may still log,
// and t.Log after the test completes panics.
type testLogWriter struct {
	mu   sync.Mutex
	t    testing.TB
	done bool
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return os.Stderr.Write(p)
	}

	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func (w *testLogWriter) detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
}

func newTestLogger(t testing.TB, level logrus.Level) (*logrus.Logger, *testLogWriter) {
	w := &testLogWriter{t: t}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, w
}
