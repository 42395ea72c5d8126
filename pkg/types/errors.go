package types

// ProviderError is the polymorphic error list the cloud-provider
// adapter reports on each tick. Exactly one of LaunchNodeError or
// TerminateNodeError is ever produced for a given error, matching the
// tagged-union shape of the original error list (spec.md "polymorphic
// error list" design note): callers type-switch exhaustively rather
// than inspecting a discriminant field.
type ProviderError interface {
	isProviderError()
}

// LaunchNodeError reports that a launch request failed. RequestID
// matches the id carried on the outbound LaunchRequest.
type LaunchNodeError struct {
	RequestID string
	NodeType  string
	Details   string
}

func (LaunchNodeError) isProviderError() {}

// TerminateNodeError reports that a termination request failed.
type TerminateNodeError struct {
	CloudInstanceID string
	RequestID       string
	Details         string
}

func (TerminateNodeError) isProviderError() {}

// InstallError reports that the installer failed to bootstrap the
// worker agent onto an already-allocated instance.
type InstallError struct {
	InstanceID string
	Details    string
}
