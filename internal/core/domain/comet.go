package domain

// CometVersion tags which CometBFT/Tendermint wire dialect a chain speaks.
// Selected once per chain at startup from configuration and threaded through
// the version adapter, which dispatches on it at its outer boundary only.
type CometVersion string

const (
	CometV034 CometVersion = "0.34"
	CometV037 CometVersion = "0.37"
	CometV038 CometVersion = "0.38"
)

// ParseCometVersion validates a configured comet_version string.
func ParseCometVersion(s string) (CometVersion, bool) {
	switch CometVersion(s) {
	case CometV034, CometV037, CometV038:
		return CometVersion(s), true
	default:
		return "", false
	}
}

// IBCVersion tags the ICS-20 payload dialect. Only "v1" is currently decoded;
// "v2" is reserved per the Open Question in the design notes.
type IBCVersion string

const IBCVersionV1 IBCVersion = "v1"
