// Package security guards file paths the monitor accepts from clients:
// FITS images under the data directory and plot artifacts under the
// output directory.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// fitsExtensions lists the file suffixes accepted for image load and
// save operations.
var fitsExtensions = []string{".fits", ".fit", ".fts"}

// ValidateFITSFilename rejects names that are empty or do not carry a
// FITS extension. Directory escape is checked separately once the name
// is joined onto its base directory.
func ValidateFITSFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range fitsExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("filename %q must end in one of %s", name, strings.Join(fitsExtensions, ", "))
}

// canonicalize resolves path to its symlink-free form. For paths that
// do not exist yet it resolves the nearest existing parent and rejoins
// the remainder, so a symlinked parent cannot smuggle a new file
// outside the tree.
func canonicalize(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	check := path
	for {
		parent := filepath.Dir(check)
		if parent == check {
			return path
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, path)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

// ValidatePathWithinDirectory ensures filePath stays inside safeDir
// after cleaning, absolutizing, and symlink resolution. The safe
// directory must exist.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// SanitizeFilename makes a safe filename component from an arbitrary
// tag such as a run ID or extractor name. Anything outside ASCII
// letters, digits, dot, underscore, and dash becomes a single
// underscore, and the result is capped at 128 characters.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	prevSub := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		safe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if safe {
			b.WriteRune(r)
			prevSub = false
			continue
		}
		if !prevSub {
			b.WriteByte('_')
			prevSub = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
