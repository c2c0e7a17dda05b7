// Package id generates the opaque identifiers handed out for monitors and
// stream clients.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// alphabet leaves out '-' and '_' so the prefix separator is unambiguous.
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Size is the length of the random part of an ID.
	Size = 16
)

// Generate returns prefix-<random>, e.g. "mon-4f9KxQ2bT7mWcZ1a".
//
// It fails only if the system cannot supply secure random bytes.
func Generate(prefix string) (string, error) {
	raw, err := gonanoid.Generate(alphabet, Size)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + raw, nil
}

// Valid reports whether s looks like an ID produced by Generate(prefix).
func Valid(prefix, s string) bool {
	raw, ok := strings.CutPrefix(s, prefix+"-")
	if !ok || len(raw) != Size {
		return false
	}
	for _, c := range raw {
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}
