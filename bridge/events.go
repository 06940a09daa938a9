package bridge

// EventListener receives JSON-encoded events as they happen. OnEvent is
// invoked from daemon background goroutines; implementations must be safe
// for concurrent use and must not block.
type EventListener interface {
	OnEvent(eventJSON string)
}

// RegisterEventListener installs the listener, replacing any previous
// one. A single listener slot exists per process. A delivery already in
// flight when the listener is replaced may still reach the old one.
func RegisterEventListener(l EventListener) error {
	return guard(func() error {
		rt().Events().Register(l)
		return nil
	})
}

// UnregisterEventListener removes the current listener. Idempotent.
func UnregisterEventListener() error {
	return guard(func() error {
		rt().Events().Unregister()
		return nil
	})
}

// RecentEvents returns up to limit buffered events as a JSON array
// string, oldest first. limit 0 yields "[]". The buffer survives daemon
// restarts within the process.
func RecentEvents(limit uint32) (string, error) {
	return guardErr(func() (string, error) {
		return rt().Events().Recent(limit), nil
	})
}
