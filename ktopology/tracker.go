package ktopology

import "github.com/birdayz/socflow/kdag"

// Tracker is the wiring state of one assembly run: the current producer
// (the stage the next stage attaches to by default) and the active set (the
// stages the error indexing stage fans in from).
//
// Tracker is a value. Advance and MarkActive return an updated copy and never
// modify the receiver, so a failed step can simply drop its result.
type Tracker struct {
	producer kdag.NodeID
	active   []kdag.NodeID
}

// CurrentProducer returns the stage the next stage attaches to.
func (t Tracker) CurrentProducer() (kdag.NodeID, bool) {
	return t.producer, t.producer != ""
}

// Advance makes name the current producer.
func (t Tracker) Advance(name kdag.NodeID) Tracker {
	t.producer = name
	return t
}

// MarkActive adds name to the active set. Adding a member twice is a no-op.
func (t Tracker) MarkActive(name kdag.NodeID) Tracker {
	if t.IsActive(name) {
		return t
	}
	active := make([]kdag.NodeID, 0, len(t.active)+1)
	active = append(active, t.active...)
	t.active = append(active, name)
	return t
}

// IsActive reports whether name is in the active set.
func (t Tracker) IsActive(name kdag.NodeID) bool {
	for _, a := range t.active {
		if a == name {
			return true
		}
	}
	return false
}

// ActiveSet returns the active set in the order stages joined it.
func (t Tracker) ActiveSet() []kdag.NodeID {
	return append([]kdag.NodeID{}, t.active...)
}
