// Package project computes the stable identity used to partition all
// checkpoint data by project.
//
// The identity is a short fingerprint of the project's canonical absolute
// path. It is computed on every invocation and never persisted; moving a
// project directory yields a new identity and orphans the old partition.
package project

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
)

// IDLength is the number of hex characters in a project identity.
const IDLength = 12

// ID returns the fingerprint for the project rooted at path.
// The path is made absolute and cleaned before hashing so that the
// identity is stable across invocations from different working
// directories.
func ID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return fmt.Sprintf("%x", sum)[:IDLength], nil
}
