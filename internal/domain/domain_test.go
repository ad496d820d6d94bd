package domain

import (
	"testing"

	"github.com/foreman-run/foreman/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rules() []config.DomainRule {
	return []config.DomainRule{
		{Domain: "frontend", Labels: []string{"ui", "frontend"}},
		{Domain: "database", Labels: []string{"db"}, TitlePattern: `(?i)schema|migration`},
		{Domain: "billing", Labels: []string{"billing"}},
		{Domain: "security", Labels: []string{"security"}},
		{Domain: "documentation", Labels: []string{"docs"}},
	}
}

func TestClassifyByLabel(t *testing.T) {
	c, err := New(rules())
	require.NoError(t, err)

	assert.Equal(t, "frontend", c.Classify(Item{Labels: []string{"UI", "bug"}}))
	assert.Equal(t, "database", c.Classify(Item{Labels: []string{"db"}}))
}

func TestClassifyByTitlePattern(t *testing.T) {
	c, err := New(rules())
	require.NoError(t, err)

	assert.Equal(t, "database", c.Classify(Item{Title: "add schema migration"}))
}

func TestClassifyPrefersLabelOverTitle(t *testing.T) {
	c, err := New(rules())
	require.NoError(t, err)

	// Matches "database" by title pattern but "frontend" by label; label wins.
	assert.Equal(t, "frontend", c.Classify(Item{Labels: []string{"ui"}, Title: "schema tweak"}))
}

func TestClassifyUnmatchedIsUnknown(t *testing.T) {
	c, err := New(rules())
	require.NoError(t, err)

	assert.Equal(t, Unknown, c.Classify(Item{Title: "update changelog"}))
}

func TestCanRunParallel(t *testing.T) {
	assert.True(t, CanRunParallel("frontend", "backend"))
	assert.True(t, CanRunParallel("frontend", "frontend"))
	assert.False(t, CanRunParallel("database", "database"))
	assert.False(t, CanRunParallel("billing", "billing"))
	assert.False(t, CanRunParallel("security", "security"))
	assert.True(t, CanRunParallel("documentation", "database"))
	assert.True(t, CanRunParallel("documentation", "documentation"))
	assert.True(t, CanRunParallel(Unknown, "database"))
	assert.True(t, CanRunParallel(Unknown, Unknown))
	assert.True(t, CanRunParallel("database", "billing"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "fix-the-login-bug", Slugify("Fix the login bug!!"))
	assert.Equal(t, "", Slugify("   "))

	long := Slugify("this title is extremely long and should be truncated to at most forty characters")
	assert.LessOrEqual(t, len(long), 40)
}
