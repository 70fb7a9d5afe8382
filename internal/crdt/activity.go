package crdt

import "github.com/theonlypal/collabfs/internal/model"

// activityEntry is one user's presence, resolved last-write-wins on OpID.
type activityEntry struct {
	value model.Activity
	id    OpID
}

// activityMap is the activity container: user-id -> Activity, LWW per key.
type activityMap struct {
	entries map[string]*activityEntry
}

func newActivityMap() *activityMap {
	return &activityMap{entries: make(map[string]*activityEntry)}
}

// set applies an incoming write if id is later than the entry's current id
// under OpID.Less (higher Seq wins, ties broken on node).
func (m *activityMap) set(user string, id OpID, value model.Activity) {
	cur, ok := m.entries[user]
	if !ok {
		m.entries[user] = &activityEntry{value: value, id: id}
		return
	}
	if cur.id.Less(id) {
		cur.value = value
		cur.id = id
	}
}

func (m *activityMap) remove(user string) {
	delete(m.entries, user)
}

func (m *activityMap) get(user string) (model.Activity, bool) {
	e, ok := m.entries[user]
	if !ok {
		return model.Activity{}, false
	}
	return e.value, true
}

func (m *activityMap) all() map[string]model.Activity {
	out := make(map[string]model.Activity, len(m.entries))
	for u, e := range m.entries {
		out[u] = e.value
	}
	return out
}
