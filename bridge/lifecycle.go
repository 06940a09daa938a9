package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/basket/pocketclaw/internal/daemon"
	"github.com/basket/pocketclaw/internal/workspace"
)

// Start launches the daemon. configText is YAML (empty means defaults),
// dataDir must be an absolute path, and the gateway binds host:port.
// At most one daemon runs per process; a second Start fails with a
// State error until Stop is called.
func Start(configText, dataDir, host string, port uint16) error {
	return guard(func() error {
		return rt().Start(dataDir, configText, host, port)
	})
}

// Stop shuts the running daemon down and waits for its components to exit.
func Stop() error {
	return guard(func() error {
		return rt().Stop()
	})
}

// Status returns the health snapshot as a JSON object string. Works
// whether or not the daemon is running.
func Status() (string, error) {
	return guardErr(func() (string, error) {
		snap, err := rt().Status()
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return "", fmt.Errorf("encode status: %w", err)
		}
		return string(data), nil
	})
}

// SendMessage forwards one message to the running daemon's webhook and
// returns the agent's reply. Messages over 1 MiB are rejected.
func SendMessage(message string) (string, error) {
	return guardErr(func() (string, error) {
		return rt().SendMessage(message)
	})
}

// ValidateConfig parses configText the same way Start does, without
// touching any state. Returns "" when the config is valid, otherwise a
// human-readable message.
func ValidateConfig(configText string) (string, error) {
	return guardErr(func() (string, error) {
		return daemon.ValidateConfig(configText), nil
	})
}

// DoctorChannels probes each configured channel and returns a JSON array
// of results. Runs standalone; the daemon need not be running.
func DoctorChannels(configText, dataDir string) (string, error) {
	return guardErr(func() (string, error) {
		return daemon.DoctorChannels(configText, dataDir)
	})
}

// ScaffoldWorkspace creates the workspace directory tree and identity
// template files under workspacePath. Idempotent: existing files are
// never overwritten. Empty identity parameters fall back to defaults.
func ScaffoldWorkspace(workspacePath, agentName, userName, timezone, communicationStyle string) error {
	return guard(func() error {
		err := workspace.Create(workspacePath, workspace.Params{
			AgentName: agentName,
			UserName:  userName,
			Timezone:  timezone,
			CommStyle: communicationStyle,
		})
		if err != nil {
			return &Error{Kind: KindConfig, Detail: err.Error()}
		}
		return nil
	})
}
