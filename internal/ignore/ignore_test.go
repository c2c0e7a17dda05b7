package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Name(t *testing.T) {
	m, err := New(DefaultPatterns, true)
	require.NoError(t, err)

	tests := []struct {
		name    string
		ignored bool
	}{
		{".DS_Store", true},
		{"build.tmp", true},
		{"x.temp", true},
		{"Thumbs.db", true},
		{".git", true},
		{"notes.txt", false},
		{"tmp", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ignored, m.Name(tt.name))
		})
	}
}

func TestMatcher_HiddenOptional(t *testing.T) {
	m := MustNew([]string{"*.log"}, false)

	assert.False(t, m.Name(".config"))
	assert.True(t, m.Name("app.log"))
}

func TestMatcher_Path(t *testing.T) {
	m := MustNew(nil, true)

	assert.False(t, m.Path("/home/u/.config/proj", "/home/u/.config/proj/src/main.go"), "root elements are not checked")
	assert.True(t, m.Path("/w", "/w/.git/HEAD"))
	assert.False(t, m.Path("/w", "/w"))
	assert.False(t, m.Path("/w", "/elsewhere/.x"))
}

func TestMatcher_NilMatchesNothing(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Name(".hidden"))
	assert.False(t, m.Path("/w", "/w/.hidden"))
}

func TestNew_RejectsBadPattern(t *testing.T) {
	_, err := New([]string{"[unclosed"}, false)
	assert.Error(t, err)
}
