package ratelimit

import "time"

// WindowStart maps a point in time to the start of its fixed window, in unix
// seconds. Windows are disjoint and contiguous: every instant belongs to
// exactly one window, including instants exactly on a boundary, which open
// the new window.
func WindowStart(now time.Time, window time.Duration) int64 {
	w := int64(window / time.Second)
	if w <= 0 {
		w = 1
	}
	return now.Unix() / w * w
}
