// Package playback defines the playback-surface collaborator. The decode and
// render stack lives outside this subsystem; enforcement only asks whether
// something is playing and learns when playback ends.
package playback

import "sync/atomic"

// Surface reports live playback state.
type Surface interface {
	IsCurrentlyPlaying() bool
}

// Tracker is a Surface fed by the local API when the player reports
// start/stop events.
type Tracker struct {
	playing atomic.Bool
}

// NewTracker creates a tracker with nothing playing.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetPlaying records whether a video is currently playing.
func (t *Tracker) SetPlaying(playing bool) {
	t.playing.Store(playing)
}

// IsCurrentlyPlaying reports whether a video is currently playing.
func (t *Tracker) IsCurrentlyPlaying() bool {
	return t.playing.Load()
}

var _ Surface = (*Tracker)(nil)
