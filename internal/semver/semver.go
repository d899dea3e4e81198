// Package semver implements the three-part version arithmetic used for
// prompt version numbers. Only plain "X.Y.Z" versions are supported: no
// pre-release tags, no build metadata, no "v" prefix.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var ErrInvalid = errors.New("invalid semver")

var semverRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

type Version struct {
	Major int
	Minor int
	Patch int
}

// BumpType is the declared magnitude of a version increment.
type BumpType string

const (
	BumpMajor BumpType = "major"
	BumpMinor BumpType = "minor"
	BumpPatch BumpType = "patch"
)

func (b BumpType) Valid() bool {
	switch b {
	case BumpMajor, BumpMinor, BumpPatch:
		return true
	}
	return false
}

func Parse(s string) (Version, error) {
	m := semverRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Bump returns current incremented by kind. Major and minor bumps reset the
// lower components to zero.
func Bump(current string, kind BumpType) (string, error) {
	v, err := Parse(current)
	if err != nil {
		return "", err
	}
	switch kind {
	case BumpMajor:
		v.Major++
		v.Minor = 0
		v.Patch = 0
	case BumpMinor:
		v.Minor++
		v.Patch = 0
	case BumpPatch:
		v.Patch++
	default:
		return "", fmt.Errorf("%w: bump type %q", ErrInvalid, kind)
	}
	return v.String(), nil
}

// Compare orders a and b numerically by (major, minor, patch) and returns
// -1, 0 or 1.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.compare(vb), nil
}

// SortDescending returns a new slice sorted newest first. Unparseable
// entries sort last in their original order.
func SortDescending(versions []string) []string {
	out := make([]string, len(versions))
	copy(out, versions)
	sort.SliceStable(out, func(i, j int) bool {
		vi, errI := Parse(out[i])
		vj, errJ := Parse(out[j])
		if errI != nil {
			return false
		}
		if errJ != nil {
			return true
		}
		return vi.compare(vj) > 0
	})
	return out
}

// Latest returns the highest version in the slice, or "" if empty.
func Latest(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	return SortDescending(versions)[0]
}

func (v Version) compare(o Version) int {
	if c := cmp(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp(v.Minor, o.Minor); c != 0 {
		return c
	}
	return cmp(v.Patch, o.Patch)
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
