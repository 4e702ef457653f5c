// ABOUTME: Audio focus collaborator for playback sessions
// ABOUTME: Lets hosts with a system audio session arbitrate continuous playback
package output

// Focus requests exclusive or ducking audio focus for continuous media
// playback. Hosts without an audio session use NoFocus. Callers must not
// assume a grant: some platforms deny silently and play anyway.
type Focus interface {
	Request() (granted bool, err error)
	Abandon()
}

// NoFocus always grants focus
type NoFocus struct{}

func (NoFocus) Request() (bool, error) { return true, nil }
func (NoFocus) Abandon()               {}
