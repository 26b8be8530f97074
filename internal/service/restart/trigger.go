package restart

// Trigger is a reason to (re)start the dispatcher.
type Trigger int

const (
	// TriggerBoot is the boot-completed signal.
	TriggerBoot Trigger = iota + 1
	// TriggerRestart is the explicit restart signal emitted on dispatcher teardown.
	TriggerRestart
	// TriggerExit is an observed exit of the launched dispatcher.
	TriggerExit
	// TriggerProbe is a run of failed health probes.
	TriggerProbe
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerBoot:
		return "boot"
	case TriggerRestart:
		return "restart"
	case TriggerExit:
		return "exit"
	case TriggerProbe:
		return "probe"
	default:
		return "unknown"
	}
}
