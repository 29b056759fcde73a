package corpus

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned when a requested path would escape the corpus
// root.
var ErrUnsafePath = errors.New("path escapes corpus root")

// ErrExists is returned when creating a guide whose file is already there.
var ErrExists = errors.New("guide already exists")

// SafeJoin joins target onto root/sub, rejecting traversal outside the root.
// Interior dot-dot segments are resolved by Clean, so only a leading one can
// survive and escape.
func SafeJoin(root, sub, target string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(target))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrUnsafePath
	}
	return filepath.Join(root, sub, cleaned), nil
}
