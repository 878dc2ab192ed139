package chordtest

import (
	"errors"
	"fmt"
	"testing"
)

// Matcher is a predicate over a failure (a returned error or a panic value) that can describe
// itself for assertion messages.
type Matcher interface {
	Matches(v any) bool
	Describe() string
}

type typeMatcher[E error] struct {
	message    string
	hasMessage bool
}

// HasTypeAndMessage matches an error, or a panic value that is an error, with an E anywhere in
// its chain whose message is exactly message.
func HasTypeAndMessage[E error](message string) Matcher {
	return typeMatcher[E]{message: message, hasMessage: true}
}

// HasType matches an error, or a panic value that is an error, with an E anywhere in its
// chain.
func HasType[E error]() Matcher {
	return typeMatcher[E]{}
}

func (m typeMatcher[E]) Matches(v any) bool {
	err, ok := v.(error)
	if !ok || err == nil {
		return false
	}

	var target E
	if !errors.As(err, &target) {
		return false
	}
	return !m.hasMessage || target.Error() == m.message
}

func (m typeMatcher[E]) Describe() string {
	name := fmt.Sprintf("%T", *new(E))
	if name == "<nil>" {
		// E is an interface type
		name = fmt.Sprintf("%T", new(E))[1:]
	}

	if m.hasMessage {
		return fmt.Sprintf("is %s with message %q", name, m.message)
	}
	return "is " + name
}

// ExpectPanic fails the test unless fn panics with a value that m matches.
func ExpectPanic(t testing.TB, m Matcher, fn func()) {
	t.Helper()

	panicked, value := catchPanic(fn)
	switch {
	case !panicked:
		t.Errorf("expected panic that %s, but there was none", m.Describe())
	case !m.Matches(value):
		t.Errorf("expected panic that %s, got %T: %v", m.Describe(), value, value)
	}
}

// ExpectError fails the test unless fn returns an error that m matches.
func ExpectError(t testing.TB, m Matcher, fn func() error) {
	t.Helper()

	err := fn()
	switch {
	case err == nil:
		t.Errorf("expected error that %s, but there was none", m.Describe())
	case !m.Matches(err):
		t.Errorf("expected error that %s, got %T: %v", m.Describe(), err, err)
	}
}

func catchPanic(fn func()) (panicked bool, value any) {
	panicked = true
	defer func() {
		if panicked {
			value = recover()
		}
	}()

	fn()
	panicked = false
	return
}
