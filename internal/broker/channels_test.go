package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelNaming(t *testing.T) {
	assert := assert.New(t)

	n := NewNames("myHub")
	assert.Equal("myHub:all", n.All())
	assert.Equal("myHub:c:conn-1", n.Connection("conn-1"))
	assert.Equal("myHub:u:user-1", n.User("user-1"))
	assert.Equal("myHub:g:gunit", n.Group("gunit"))
	assert.Equal("myHub:gm", n.GroupManagement())
	assert.Equal("myHub:ack:server-a", n.Ack("server-a"))
}

func TestChannelNamingPreservesColonsInAddress(t *testing.T) {
	assert := assert.New(t)

	n := NewNames("myHub")
	assert.Equal("myHub:g:tenant:42:admins", n.Group("tenant:42:admins"))
}
