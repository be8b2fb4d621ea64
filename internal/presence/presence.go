package presence

import (
	"sort"
	"sync"
)

// A group counts as online once this many members are connected at the same time.
const onlineThreshold = 2

// Change is a group crossing the online threshold in either direction.
type Change struct {
	GroupID string
	Online  bool
}

type groupState struct {
	members map[string]struct{}
	online  bool
}

// Aggregator derives group online status from member connections.
// Nothing here is persisted.
type Aggregator struct {
	groups map[string]*groupState
	// identity -> groups it was counted in
	memberships map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		groups:      make(map[string]*groupState),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Connect counts identity as connected in each of groups and reports every
// group that became online as a result.
func (a *Aggregator) Connect(identity string, groups []string) []Change {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined, ok := a.memberships[identity]
	if !ok {
		joined = make(map[string]struct{}, len(groups))
		a.memberships[identity] = joined
	}

	var changes []Change
	for _, groupID := range groups {
		joined[groupID] = struct{}{}

		g, ok := a.groups[groupID]
		if !ok {
			g = &groupState{members: make(map[string]struct{})}
			a.groups[groupID] = g
		}
		g.members[identity] = struct{}{}

		if online := len(g.members) >= onlineThreshold; online != g.online {
			g.online = online
			changes = append(changes, Change{GroupID: groupID, Online: online})
		}
	}

	sortChanges(changes)
	return changes
}

// Disconnect removes identity from every group it was counted in and reports
// every group that went offline as a result.
func (a *Aggregator) Disconnect(identity string) []Change {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined, ok := a.memberships[identity]
	if !ok {
		return nil
	}
	delete(a.memberships, identity)

	var changes []Change
	for groupID := range joined {
		g, ok := a.groups[groupID]
		if !ok {
			continue
		}
		delete(g.members, identity)

		if online := len(g.members) >= onlineThreshold; online != g.online {
			g.online = online
			changes = append(changes, Change{GroupID: groupID, Online: online})
		}
		if len(g.members) == 0 {
			delete(a.groups, groupID)
		}
	}

	sortChanges(changes)
	return changes
}

// OnlineGroups returns the ids of all online groups, sorted.
func (a *Aggregator) OnlineGroups() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var ids []string
	for id, g := range a.groups {
		if g.online {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Members returns the connected members of a group, sorted.
func (a *Aggregator) Members(groupID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	g, ok := a.groups[groupID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a *Aggregator) IsOnline(groupID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	g, ok := a.groups[groupID]
	return ok && g.online
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].GroupID < changes[j].GroupID
	})
}
