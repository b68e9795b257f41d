package discovery

// Record is the outcome of initializing one discovered server. Payload is
// the *mcp.InitializeResult on success and the error otherwise.
type Record struct {
	ServerName string
	Success    bool
	Payload    any
}

// State is the lifecycle of one server within a discovery run. There is no
// transition back to StateDiscovered.
type State int

const (
	StateUnknown State = iota
	StateDiscovered
	StateInitializing
	StateInitialized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func failedNames(records []Record) []string {
	var names []string
	for _, r := range records {
		if !r.Success {
			names = append(names, r.ServerName)
		}
	}
	return names
}
