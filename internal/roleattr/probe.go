package roleattr

// Probe observes a single claim value build.
//
// Implementations must be safe to call from the goroutine running the build;
// a probe is never shared between builds by this package.
type Probe interface {
	// RoleSkipped is called when a role's attributes could not be resolved.
	RoleSkipped(role Role, err error)

	// RoleOmitted is called when a role resolved but contributes nothing.
	RoleOmitted(role Role)

	// Built is called once per build with the number of roles in the result.
	Built(claimName string, roleCount int)
}

// NoOpProbe is a null object implementation of Probe.
// Implementations can embed this to get default no-op behavior.
type NoOpProbe struct{}

func (NoOpProbe) RoleSkipped(role Role, err error)      {}
func (NoOpProbe) RoleOmitted(role Role)                 {}
func (NoOpProbe) Built(claimName string, roleCount int) {}
