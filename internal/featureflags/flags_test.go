package featureflags

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_Booleans(t *testing.T) {
	s := Parse("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, s.Enabled(name, "u1"), name)
		assert.True(t, s.Enabled(name, ""), "%s: boolean flags ignore the user", name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, s.Enabled(name, "u1"), name)
	}
}

func TestEnabled_Rollout(t *testing.T) {
	s := Parse("always=100%,never=0%,canary=25%,over=150%,junk=abc%")

	assert.True(t, s.Enabled("always", "u1"))
	assert.False(t, s.Enabled("never", "u1"))
	assert.True(t, s.Enabled("over", "u1"))
	assert.False(t, s.Enabled("junk", "u1"))
	assert.False(t, s.Enabled("canary", ""), "partial rollout needs a user")

	first := s.Enabled("canary", "user-42")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Enabled("canary", "user-42"))
	}

	on := 0
	for i := 0; i < 1000; i++ {
		if s.Enabled("canary", fmt.Sprintf("user-%d", i)) {
			on++
		}
	}
	assert.InDelta(t, 250, on, 100)
}

func TestParse_SkipsMalformed(t *testing.T) {
	s := Parse(" bad ,X=on, y = 20% ,z=off,=on,w=")

	assert.Equal(t, []string{"x", "y", "z"}, s.Names())
	raw, ok := s.Raw("Y")
	assert.True(t, ok)
	assert.Equal(t, "20%", raw)

	snap := s.Snapshot("")
	assert.Equal(t, map[string]bool{"x": true, "y": false, "z": false}, snap)
}

func TestNilSet(t *testing.T) {
	var s *Set
	assert.False(t, s.Enabled(ChatWidget, "u1"))
	assert.Empty(t, s.Names())
	assert.Empty(t, s.Snapshot("u1"))
}
