package tcpserver

// Recorder is notified of session lifecycle events, typically to update
// metrics. Calls come from receiver goroutines and must not block.
type Recorder interface {
	// SessionStarted is called when a connection is accepted.
	SessionStarted()
	// LineReceived is called for every record stored, with its size on the
	// wire including the terminator.
	LineReceived(bytes int)
	// SessionEnded is called once the connection has been closed.
	SessionEnded(cause EndCause)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()       {}
func (nopRecorder) LineReceived(int)      {}
func (nopRecorder) SessionEnded(EndCause) {}
