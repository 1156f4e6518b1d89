package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraphRejectsCycle(t *testing.T) {
	_, err := NewGraph(map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	})
	require.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewGraphRejectsSelfDependency(t *testing.T) {
	_, err := NewGraph(map[string][]string{"a": {"a"}})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewGraphRejectsUnknownDependency(t *testing.T) {
	_, err := NewGraph(map[string][]string{"a": {"ghost"}})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "ghost")
}

func TestReadySetUnlocksAsDependenciesSucceed(t *testing.T) {
	g, err := NewGraph(map[string][]string{
		"structural":  nil,
		"pattern":     {"structural"},
		"smell":       {"structural"},
		"refactoring": {"pattern", "smell"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"structural"}, g.ReadySet(nil))

	done := map[string]bool{"structural": true}
	assert.Equal(t, []string{"pattern", "smell"}, g.ReadySet(done))

	done["pattern"] = true
	assert.Equal(t, []string{"smell"}, g.ReadySet(done))

	done["smell"] = true
	assert.Equal(t, []string{"refactoring"}, g.ReadySet(done))

	done["refactoring"] = true
	assert.Empty(t, g.ReadySet(done))
}

func TestReadySetBlockedByFailedDependency(t *testing.T) {
	g, err := NewGraph(map[string][]string{
		"structural": nil,
		"pattern":    {"structural"},
	})
	require.NoError(t, err)

	// structural ran but did not succeed: pattern never becomes ready.
	assert.Equal(t, []string{"structural"}, g.ReadySet(map[string]bool{}))
}
