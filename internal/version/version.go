package version

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version is overridden at build time with -ldflags "-X railgate.app/api/internal/version.Version=...".
var Version = "dev"

// Resolve returns the trimmed contents of the VERSION file at path, falling
// back to the build-time Version when the file is missing or empty.
func Resolve(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return Version
	}
	if v := strings.TrimSpace(string(b)); v != "" {
		return v
	}
	return Version
}

// Major returns the major component of a dotted version such as "1.4.2" or
// "v2.0.0". Non-numeric versions like "dev" report zero with an error.
func Major(version string) (int, error) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return 0, fmt.Errorf("empty version string")
	}

	parts := strings.Split(version, ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid major version: %v", err)
	}

	if major < 0 {
		return 0, fmt.Errorf("major version cannot be negative")
	}

	return major, nil
}
