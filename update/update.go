// Package update checks GitHub releases for a newer build and swaps the
// running binary in place.
package update

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

const (
	Repo       = "whisperkey/whisperkey"
	BinaryName = "whisperkey"
)

// Release describes a downloadable build.
type Release struct {
	Version     string
	AssetURL    string
	ChecksumURL string
}

// NewerThan reports whether the release is a strict upgrade over the
// running version. Unparseable versions (including "dev") never upgrade.
func (r Release) NewerThan(current string) bool {
	cur, err := parseVersion(current)
	if err != nil {
		return false
	}
	rel, err := parseVersion(r.Version)
	if err != nil {
		return false
	}
	return rel.after(cur)
}

func assetName() string {
	return fmt.Sprintf("%s_%s_%s", BinaryName, runtime.GOOS, runtime.GOARCH)
}

type version struct {
	major, minor, patch int
}

// parseVersion accepts "v1.2.3" with optional pre-release or build
// suffixes, which are ignored for comparison.
func parseVersion(v string) (version, error) {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return version{}, fmt.Errorf("invalid version: %q", v)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return version{}, fmt.Errorf("invalid version: %q", v)
		}
		nums[i] = n
	}
	return version{nums[0], nums[1], nums[2]}, nil
}

func (a version) after(b version) bool {
	if a.major != b.major {
		return a.major > b.major
	}
	if a.minor != b.minor {
		return a.minor > b.minor
	}
	return a.patch > b.patch
}
