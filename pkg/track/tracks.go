package track

import (
	"github.com/cyclopcam/adas/pkg/idgen"
	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/logs"
)

// EvictionPolicy decides when a track is removed from a Tracks registry
type EvictionPolicy interface {
	ShouldEvict(o *Object) bool
}

// EvictionFunc adapts an ordinary function to an EvictionPolicy
type EvictionFunc func(o *Object) bool

func (f EvictionFunc) ShouldEvict(o *Object) bool {
	return f(o)
}

// NeverEvict keeps every track forever. This is the default policy.
type NeverEvict struct{}

func (NeverEvict) ShouldEvict(o *Object) bool {
	return false
}

// Tracks is the set of live tracks for a single stream of frames
type Tracks struct {
	Log    logs.Log
	Policy EvictionPolicy

	ids     idgen.Int
	objects []*Object
}

func NewTracks(log logs.Log, policy EvictionPolicy) *Tracks {
	if policy == nil {
		policy = NeverEvict{}
	}
	return &Tracks{
		Log:    nn.DefaultLog(log),
		Policy: policy,
	}
}

// Open creates a new track from its first detection
func (t *Tracks) Open(box nn.BoundingBox) *Object {
	o := NewObject(t.ids.Next(), box.FrameStamp)
	o.UpdateStatus(StatusActive)
	o.UpdateLastDetection(box)
	o.BBox.ObjectID = o.ID
	t.objects = append(t.objects, o)
	t.Log.Debugf("Opened track %v (%v)", o.ID, nn.ClassName(box.Label))
	return o
}

// Get returns the track with the given ID, or nil
func (t *Tracks) Get(id int) *Object {
	for _, o := range t.objects {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (t *Tracks) Len() int {
	return len(t.objects)
}

// Objects returns the live tracks, in the order they were opened
func (t *Tracks) Objects() []*Object {
	return t.objects
}

// Renderable returns the tracks that have been alive for at least minAliveFrames
func (t *Tracks) Renderable(minAliveFrames int) []*Object {
	r := []*Object{}
	for _, o := range t.objects {
		if o.Renderable(minAliveFrames) {
			r = append(r, o)
		}
	}
	return r
}

// Sweep removes every track that the eviction policy rejects, and returns their IDs
func (t *Tracks) Sweep() []int {
	evicted := []int{}
	keep := t.objects[:0]
	for _, o := range t.objects {
		if t.Policy.ShouldEvict(o) {
			evicted = append(evicted, o.ID)
			o.UpdateStatus(StatusInactive)
			continue
		}
		keep = append(keep, o)
	}
	for i := len(keep); i < len(t.objects); i++ {
		t.objects[i] = nil
	}
	t.objects = keep
	if len(evicted) != 0 {
		t.Log.Debugf("Evicted tracks %v", evicted)
	}
	return evicted
}

// Reset removes all tracks and restarts ID allocation
func (t *Tracks) Reset() {
	t.objects = nil
	t.ids.Reset()
}
