package errors

import (
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for path traversal, since package
// names become directory components under the recipe tree and the install
// prefix.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, etc.)
//   - No path separators
//   - Maximum length of 256 characters
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidConstraint, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidConstraint, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidConstraint, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidConstraint, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateVariantKey validates a variant axis name (e.g. "platform", "arch").
// Axis names become path components of install directories, so the same
// traversal rules apply as for package names.
func ValidateVariantKey(key string) error {
	if key == "" {
		return New(ErrCodeInvalidConstraint, "variant key cannot be empty")
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return New(ErrCodeInvalidConstraint, "variant key %q contains invalid character %q", key, r)
		}
	}
	return nil
}

// ValidatePrefixPath validates an install prefix or search path.
// Paths must be non-empty and free of null bytes; existence is not
// required here since prefixes are created lazily on first install.
func ValidatePrefixPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}
	if len(path) > 4096 {
		return New(ErrCodeInvalidPath, "path too long (max 4096 characters)")
	}
	if strings.ContainsRune(path, '\x00') {
		return New(ErrCodeInvalidPath, "path contains null byte")
	}
	return nil
}
