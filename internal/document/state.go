package document

// Mode is fixed when a document is opened.
type Mode int

const (
	// ModeLocal documents have no backing file and never touch the network.
	ModeLocal Mode = iota
	// ModeRemote documents are backed by a drive file.
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	}
	return "unknown"
}

// SaveState is the outcome of the most recent persistence attempt.
type SaveState int

const (
	Saved SaveState = iota
	Saving
	SaveError
)

func (s SaveState) String() string {
	switch s {
	case Saved:
		return "saved"
	case Saving:
		return "saving"
	case SaveError:
		return "error"
	}
	return "unknown"
}

// Phase is the controller's position in the open/edit lifecycle.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseLocal
	PhaseAwaitingAuth
	PhaseFetching
	PhaseReady
	// PhaseErrored is terminal.
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseLocal:
		return "local"
	case PhaseAwaitingAuth:
		return "awaiting-auth"
	case PhaseFetching:
		return "fetching"
	case PhaseReady:
		return "ready"
	case PhaseErrored:
		return "errored"
	}
	return "unknown"
}

// Editable reports whether the editing surface is shown in this phase.
func (p Phase) Editable() bool {
	return p == PhaseLocal || p == PhaseReady
}

// FileError is a fatal error shown in place of the editor.
type FileError struct {
	Title   string
	Message string
	Details string
}

func (e *FileError) Error() string {
	if e.Details == "" {
		return e.Title + ": " + e.Message
	}
	return e.Title + ": " + e.Message + " (" + e.Details + ")"
}

// Snapshot is a copy of a document's state.
type Snapshot struct {
	Phase     Phase
	Mode      Mode
	ID        string
	Name      string
	Body      string
	Starred   bool
	SaveState SaveState
	Err       *FileError

	// RequestedUserID is the account the open request was issued for.
	RequestedUserID string
	// NeedsReauth is set when the UserPolicy asked for a different account.
	NeedsReauth bool
}
