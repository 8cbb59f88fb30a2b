package sandbox

import "fmt"

// ProvisioningError means the remote service rejected sandbox creation
// (quota, bad credentials, unknown template). Fatal to the session.
type ProvisioningError struct {
	StatusCode int
	Message    string
}

func (e *ProvisioningError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sandbox provisioning failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sandbox provisioning failed: %s", e.Message)
}

// NotInitializedError means an operation was attempted before Create
// completed or after Teardown. A sequencing bug in the caller.
type NotInitializedError struct {
	Op string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("sandbox not initialized: %s called before create or after teardown", e.Op)
}

// GatewayUnavailableError means gateway credentials were requested from
// a sandbox created without tool-gateway support.
type GatewayUnavailableError struct{}

func (e *GatewayUnavailableError) Error() string {
	return "tool gateway not available: sandbox was created without tool integrations"
}

// FileError means a file convenience operation failed inside the sandbox.
type FileError struct {
	Path     string
	ExitCode int
	Stderr   string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file operation on %s failed (exit %d): %s", e.Path, e.ExitCode, e.Stderr)
}
