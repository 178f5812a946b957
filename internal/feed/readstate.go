package feed

import (
	"sort"

	"github.com/topicstream/topicstream/internal/models"
)

// ReadState is the set of locally read topic ids. It is owned by the
// Engine, which synchronizes access; the type itself is not safe for
// concurrent use.
type ReadState struct {
	ids map[int64]struct{}
}

// NewReadState builds a read state from persisted topic ids.
func NewReadState(ids []int64) *ReadState {
	rs := &ReadState{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		rs.ids[id] = struct{}{}
	}
	return rs
}

// Contains reports whether the topic id is locally marked read.
func (rs *ReadState) Contains(id int64) bool {
	_, ok := rs.ids[id]
	return ok
}

// Add marks a topic id as locally read.
func (rs *ReadState) Add(id int64) {
	rs.ids[id] = struct{}{}
}

// Remove unmarks a topic id.
func (rs *ReadState) Remove(id int64) {
	delete(rs.ids, id)
}

// Len returns the number of locally read topics.
func (rs *ReadState) Len() int {
	return len(rs.ids)
}

// IDs returns the locally read topic ids in ascending order.
func (rs *ReadState) IDs() []int64 {
	out := make([]int64, 0, len(rs.ids))
	for id := range rs.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsRead reconciles local and remote read state for one topic: a topic is
// read when it is in the local set, or when sync is enabled and the remote
// watermark has reached the topic's highest post. The remote side is
// re-evaluated on every call because the watermark can move between polls
// without any local action.
func (rs *ReadState) IsRead(t models.Topic, syncEnabled bool) bool {
	if rs.Contains(t.ID) {
		return true
	}
	if !syncEnabled {
		return false
	}
	w := t.LastReadPostNumber
	return w != nil && *w > 0 && *w >= t.HighestPostNumber
}
