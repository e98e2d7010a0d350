package reconcile

import "grimm.is/zonefwd/internal/model"

// Transition is the change of one network's address between two polls.
type Transition int

const (
	Unchanged Transition = iota
	Up
	Down
	Changed
)

func (t Transition) String() string {
	switch t {
	case Up:
		return "up"
	case Down:
		return "down"
	case Changed:
		return "changed"
	}
	return "unchanged"
}

// Classify compares the cached address prev with the observed address cur.
func Classify(prev, cur model.Cidr) Transition {
	switch {
	case prev.IsEmpty() && !cur.IsEmpty():
		return Up
	case !prev.IsEmpty() && cur.IsEmpty():
		return Down
	case !prev.IsEmpty() && !prev.Equal(cur):
		return Changed
	}
	return Unchanged
}
