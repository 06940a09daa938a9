package bridge

// ComponentHealth is one supervised component's status.
type ComponentHealth struct {
	Name         string
	Status       string
	LastError    *string
	RestartCount uint64
}

// HealthSnapshot is the full daemon health view.
type HealthSnapshot struct {
	DaemonRunning bool
	PID           int32
	UptimeSeconds uint64
	Components    []ComponentHealth
}

// HealthDetail returns the structured health snapshot. Works whether or
// not the daemon is running.
func HealthDetail() (HealthSnapshot, error) {
	return guardErr(func() (HealthSnapshot, error) {
		snap, err := rt().Status()
		if err != nil {
			return HealthSnapshot{}, err
		}
		out := HealthSnapshot{
			DaemonRunning: snap.DaemonRunning,
			PID:           snap.PID,
			UptimeSeconds: snap.UptimeSeconds,
		}
		for _, c := range snap.Components {
			out.Components = append(out.Components, componentHealth(c.Name, c.Status, c.LastError, c.RestartCount))
		}
		return out, nil
	})
}

// GetComponentHealth returns one component's status by name, or nil if no
// component with that name has ever been registered.
func GetComponentHealth(name string) (*ComponentHealth, error) {
	return guardErr(func() (*ComponentHealth, error) {
		c, ok := rt().Health().Get(name)
		if !ok {
			return nil, nil
		}
		out := componentHealth(c.Name, c.Status, c.LastError, c.RestartCount)
		return &out, nil
	})
}

func componentHealth(name, status, lastError string, restarts uint64) ComponentHealth {
	out := ComponentHealth{Name: name, Status: status, RestartCount: restarts}
	if lastError != "" {
		out.LastError = &lastError
	}
	return out
}
