package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryEntriesAreComplete(t *testing.T) {
	seen := make(map[string]bool)
	for _, def := range toolRegistry {
		require.NotEmpty(t, def.Spec.Name)
		assert.NotEmpty(t, def.Spec.Description, def.Spec.Name)
		require.NotNil(t, def.Run, def.Spec.Name)
		assert.Equal(t, "object", def.Spec.Parameters["type"], def.Spec.Name)
		assert.False(t, seen[def.Spec.Name], "duplicate tool %s", def.Spec.Name)
		seen[def.Spec.Name] = true

		byName, ok := toolsByName[def.Spec.Name]
		require.True(t, ok, def.Spec.Name)
		assert.Equal(t, def.AdminOnly, byName.AdminOnly, def.Spec.Name)
	}
}

func TestToolsForRoleVisibility(t *testing.T) {
	admin := ToolsFor(true)
	assert.Len(t, admin, len(toolRegistry))

	client := make(map[string]bool)
	for _, spec := range ToolsFor(false) {
		client[spec.Name] = true
	}
	for _, def := range toolRegistry {
		if def.AdminOnly {
			assert.False(t, client[def.Spec.Name], "admin tool %s exposed to patients", def.Spec.Name)
		} else {
			assert.True(t, client[def.Spec.Name], "client tool %s missing", def.Spec.Name)
		}
	}
}

func TestToolsForKeepsRegistryOrder(t *testing.T) {
	admin := ToolsFor(true)
	for i, def := range toolRegistry {
		assert.Equal(t, def.Spec.Name, admin[i].Name)
	}
}
