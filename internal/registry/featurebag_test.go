package registry

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSubscription struct {
	unsubscribed bool
}

func (s *stubSubscription) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

func TestFeatureBagSubscriptions(t *testing.T) {
	assert := assert.New(t)
	bag := NewFeatureBag()
	assert.Empty(bag.Subscriptions())

	s1 := &stubSubscription{}
	s2 := &stubSubscription{}
	bag.AddSubscription(s1)
	bag.AddSubscription(s2)

	subs := bag.Subscriptions()
	assert.Len(subs, 2)
	assert.Same(s1, subs[0])
	assert.Same(s2, subs[1])
}

func TestFeatureBagGroupMembershipIsCaseInsensitive(t *testing.T) {
	assert := assert.New(t)
	bag := NewFeatureBag()

	assert.True(bag.AddGroup("Room1"))
	assert.False(bag.AddGroup("room1"))

	groups := bag.Groups()
	assert.Equal([]string{"Room1"}, groups)

	bag.RemoveGroup("ROOM1")
	assert.Empty(bag.Groups())
}

func TestFeatureBagGroupsReturnsAllJoined(t *testing.T) {
	assert := assert.New(t)
	bag := NewFeatureBag()
	bag.AddGroup("a")
	bag.AddGroup("b")

	groups := bag.Groups()
	sort.Strings(groups)
	assert.Equal([]string{"a", "b"}, groups)
}
