package utils

import "regexp"

// versionPattern accepts dotted numeric versions with an optional "v"
// prefix and an optional pre-release suffix, e.g. "1.0", "v2.3.1",
// "1.4.0-beta".
var versionPattern = regexp.MustCompile(`^v?\d+(\.\d+)*(-[0-9A-Za-z.]+)?$`)

// IsValidVersion checks if the string is an acceptable target version
func IsValidVersion(s string) bool {
	return versionPattern.MatchString(s)
}
