package bootlog

// Debug levels. The values are the firmware-standard bitmask levels, so a
// region written by this core carries the same level words the hardware
// debug channel filters on.
const (
	LevelInit    uint32 = 0x00000001
	LevelWarn    uint32 = 0x00000002
	LevelInfo    uint32 = 0x00000040
	LevelVerbose uint32 = 0x00400000
	LevelError   uint32 = 0x80000000
)

// LevelName returns a short name for a level word, for mirror prefixes and
// tooling. Unknown masks report as "INFO".
func LevelName(level uint32) string {
	switch {
	case level&LevelError != 0:
		return "ERROR"
	case level&LevelWarn != 0:
		return "WARN"
	case level&LevelInit != 0:
		return "INIT"
	case level&LevelVerbose != 0:
		return "VERBOSE"
	default:
		return "INFO"
	}
}

// Phase tags the execution stage that produced an entry. Timestamps are
// phase-relative; the tag, not the raw ticks, orders entries across a phase
// boundary.
type Phase uint8

const (
	PhaseUnknown Phase = iota
	PhasePreMem        // earliest pre-memory initialization
	PhaseDriver        // driver execution
	PhaseRuntime       // post-boot runtime services
	PhaseMgmt          // management mode
)

func (p Phase) String() string {
	switch p {
	case PhasePreMem:
		return "PREMEM"
	case PhaseDriver:
		return "DRIVER"
	case PhaseRuntime:
		return "RUNTIME"
	case PhaseMgmt:
		return "MGMT"
	default:
		return "UNKNOWN"
	}
}
