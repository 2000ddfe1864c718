package upsert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKeyMatcher(t *testing.T) {
	t.Run("fields", func(t *testing.T) {
		m, err := NewKeyMatcher([]string{"name", "email"}, nil)
		require.NoError(t, err)
		require.True(t, m.Match("name"))
		require.True(t, m.Match("email"))
		require.False(t, m.Match("names"))
	})

	t.Run("patterns_are_unanchored", func(t *testing.T) {
		m, err := NewKeyMatcher(nil, []string{"_id$", "^xid"})
		require.NoError(t, err)
		require.True(t, m.Match("user_id"))
		require.True(t, m.Match("xid"))
		require.True(t, m.Match("xidentifier"))
		require.False(t, m.Match("id"))
		require.False(t, m.Match("user_ids"))
	})

	t.Run("none", func(t *testing.T) {
		m, err := NewKeyMatcher(nil, nil)
		require.NoError(t, err)
		require.False(t, m.Match("name"))
	})

	t.Run("exclusive", func(t *testing.T) {
		_, err := NewKeyMatcher([]string{"name"}, []string{"name"})
		require.ErrorContains(t, err, "mutually exclusive")
	})

	t.Run("invalid_pattern", func(t *testing.T) {
		_, err := NewKeyMatcher(nil, []string{"("})
		require.ErrorContains(t, err, `invalid upsert pattern "("`)
	})
}
