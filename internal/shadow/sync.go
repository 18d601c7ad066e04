package shadow

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ignoreFileName is the newline-delimited pattern source read from the
// source tree of a sync.
const ignoreFileName = ".gitignore"

// readIgnorePatterns loads the ignore file from root. A missing or
// unreadable file yields no patterns.
func readIgnorePatterns(root string) []string {
	f, err := os.Open(filepath.Join(root, ignoreFileName))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.Trim(line, "/"))
	}
	return patterns
}

// matchesIgnore reports whether the slash-relative path matches any
// pattern. Patterns are matched as path substrings, not full glob
// semantics; this sync is a simple mirror, not an ignore-rule
// interpreter. Callers relying on precise gitignore behavior will not
// get it here.
func matchesIgnore(relPath string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(relPath, p) {
			return true
		}
	}
	return false
}

// syncTree mirrors all eligible files from src into dst, overwriting
// existing destination files. Hidden entries are skipped except the
// ignore file itself; paths matching the source tree's ignore patterns
// are skipped. Used in both directions: project -> worktree on create,
// worktree -> project on restore.
func syncTree(src, dst string) error {
	patterns := readIgnorePatterns(src)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		name := d.Name()
		if strings.HasPrefix(name, ".") && name != ignoreFileName {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesIgnore(rel, patterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, filepath.FromSlash(rel))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil // symlinks and specials are not mirrored
		}
		return copyFile(path, target)
	})
}

// copyFile copies src over dst, creating parent directories and
// preserving the source mode.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
