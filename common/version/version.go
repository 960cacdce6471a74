// Package version carries the server's semantic version.
package version

import "github.com/blang/semver"

// CURRENT_VERSION is bumped on release; no network update check is
// performed (this server has no persistence or cloud collaborator).
var CURRENT_VERSION = semver.MustParse("0.1.0")
