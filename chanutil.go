package chordtest

// unexported helpers relating to channels

var alwaysClosed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func isClosed(c <-chan struct{}) bool {
	if c == nil {
		return false
	}

	select {
	case <-c:
		return true
	default:
		return false
	}
}

// tryRecv receives from c without blocking. got reports whether the receive happened; ok is
// false if it happened because c is closed.
func tryRecv[T any](c <-chan T) (v T, ok bool, got bool) {
	select {
	case v, ok = <-c:
		return v, ok, true
	default:
		return v, false, false
	}
}
