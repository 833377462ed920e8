package session

import "github.com/Masterminds/semver/v3"

// versionSatisfies reports whether version meets constraint, e.g.
// versionSatisfies("1.4.2", ">=1.2.0"). An unparseable version or
// constraint is treated as unsatisfied rather than panicking — a CLI's
// self-reported version string is adapter-detected text, not guaranteed
// semver.
func versionSatisfies(version, constraint string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(v)
}
