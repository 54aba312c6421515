package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewObjectID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewObjectID()
		assert.True(t, IsObjectID(id), id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIsObjectID(t *testing.T) {
	assert.True(t, IsObjectID("65a1f0c2e4b0a1b2c3d4e5f6"))
	assert.False(t, IsObjectID("65A1F0C2E4B0A1B2C3D4E5F6"))
	assert.False(t, IsObjectID("65a1f0c2e4b0a1b2c3d4e5f"))
	assert.False(t, IsObjectID("not-an-id"))
	assert.False(t, IsObjectID(""))
}

func TestNewOrderID(t *testing.T) {
	id := NewOrderID("WD-")
	assert.True(t, strings.HasPrefix(id, "WD-"))
	assert.True(t, IsObjectID(strings.TrimPrefix(id, "WD-")))
}
