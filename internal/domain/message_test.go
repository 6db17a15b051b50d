package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKnownRole(t *testing.T) {
	for _, r := range []string{RoleSystem, RoleUser, RoleAssistant, RoleTool} {
		assert.True(t, IsKnownRole(r), r)
	}
	assert.False(t, IsKnownRole("developer"))
	assert.False(t, IsKnownRole(""))
}

func TestCloneMessages(t *testing.T) {
	orig := []Message{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}}
	cp := CloneMessages(orig)
	assert.Equal(t, orig, cp)

	cp[0].Content = "changed"
	assert.Equal(t, "a", orig[0].Content)

	empty := CloneMessages(nil)
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)
}

func TestAgentPluginDisplayName(t *testing.T) {
	assert.Equal(t, "Beta Agent", (&AgentPlugin{ID: "beta", Name: "Beta Agent"}).DisplayName())
	assert.Equal(t, "beta", (&AgentPlugin{ID: "beta"}).DisplayName())
}
