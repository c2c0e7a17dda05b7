package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for range count {
		id, err := Generate("mon")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"monitor", "mon"},
		{"stream client", "client"},
		{"empty prefix", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Generate(tt.prefix)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(id, tt.prefix+"-"))
			assert.Len(t, id, len(tt.prefix)+1+Size)

			raw := strings.TrimPrefix(id, tt.prefix+"-")
			assert.NotContains(t, raw, "-")
			assert.NotContains(t, raw, "_")
			assert.True(t, Valid(tt.prefix, id))
		})
	}
}

func TestValid(t *testing.T) {
	good, err := Generate("mon")
	require.NoError(t, err)

	tests := []struct {
		name string
		s    string
		want bool
	}{
		{"generated", good, true},
		{"wrong prefix", "client" + strings.TrimPrefix(good, "mon"), false},
		{"missing separator", "mon" + strings.TrimPrefix(good, "mon-"), false},
		{"too short", good[:len(good)-1], false},
		{"too long", good + "x", false},
		{"bad character", "mon-" + strings.Repeat("_", Size), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid("mon", tt.s))
		})
	}
}

func BenchmarkGenerate(b *testing.B) {
	for b.Loop() {
		_, _ = Generate("bench")
	}
}
