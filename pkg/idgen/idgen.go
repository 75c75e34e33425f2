package idgen

import "sync/atomic"

// Int returns values 1,2,3... for track identities.
// Zero is never generated, so a zero id can be used to mean "not assigned".
// When the counter reaches the maximum int32 value, it wraps around to 1.
type Int struct {
	next atomic.Int32
}

func (u *Int) Next() int {
	n := u.next.Add(1)
	if n <= 0 {
		u.next.Store(1)
		n = 1
	}
	return int(n)
}

// Reset restarts the sequence, so that the next id is 1
func (u *Int) Reset() {
	u.next.Store(0)
}
