package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ to the home directory and substitutes
// $VAR references. Paths that cannot be expanded are returned as given.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~", strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
