package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = AlarmSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// AlarmSemVer is the current version of the alarm tooling.
	// It's the Semantic Version of the software.
	AlarmSemVer = "0.1.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

// WakeProtocol versions the contract between the sleep timer and wake
// service backends: handle naming, callback delivery and cancel semantics.
var WakeProtocol Protocol = 1

// Info is the version information printed by `alarm version --verbose`.
type Info struct {
	Alarm        string `json:"alarm"`
	GitCommit    string `json:"git_commit,omitempty"`
	WakeProtocol uint64 `json:"wake_protocol"`
}

// Current returns the version information of this build.
func Current() Info {
	return Info{
		Alarm:        Version,
		GitCommit:    GitCommit,
		WakeProtocol: WakeProtocol.Uint64(),
	}
}
