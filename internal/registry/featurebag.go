package registry

import (
	"strings"
	"sync"

	"github.com/alwitt/hublife/internal/broker"
)

// FeatureBag is the manager's per-connection side-table: the individual "c:{id}" /
// "u:{id}" broker subscriptions this connection owns (its "all" subscription is
// process-wide and lives on the manager, not here) plus the groups it has joined. It
// is installed fresh by ConnectionRegistry.Add and discarded on OnDisconnected; the
// external ConnectionHandle never mutates it directly.
type FeatureBag struct {
	lock          sync.Mutex
	subscriptions []broker.Subscription
	groups        map[string]string // lower(name) -> original-case name
}

// NewFeatureBag creates an empty bag.
func NewFeatureBag() *FeatureBag {
	return &FeatureBag{
		groups: make(map[string]string),
	}
}

// AddSubscription records sub as owned by this connection so it is released on
// disconnect.
func (f *FeatureBag) AddSubscription(sub broker.Subscription) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.subscriptions = append(f.subscriptions, sub)
}

// Subscriptions returns every subscription recorded via AddSubscription.
func (f *FeatureBag) Subscriptions() []broker.Subscription {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]broker.Subscription, len(f.subscriptions))
	copy(out, f.subscriptions)
	return out
}

// AddGroup records name as joined, comparing case-insensitively so "Room1" and
// "room1" are the same membership. Returns false if the connection had already
// joined an equivalent name.
func (f *FeatureBag) AddGroup(name string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	key := strings.ToLower(name)
	if _, exists := f.groups[key]; exists {
		return false
	}
	f.groups[key] = name
	return true
}

// RemoveGroup drops name from the joined set, comparing case-insensitively.
func (f *FeatureBag) RemoveGroup(name string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.groups, strings.ToLower(name))
}

// Groups returns the original-case group names this connection has joined.
func (f *FeatureBag) Groups() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]string, 0, len(f.groups))
	for _, name := range f.groups {
		out = append(out, name)
	}
	return out
}
