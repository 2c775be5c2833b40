package grid

import (
	"golang.org/x/mod/semver"
)

// LibraryVersion is the version of the grid model and its file format.
// Files whose major version differs cannot be read.
const LibraryVersion = "v1.2.0"

// CheckVersion verifies that the grid library matches the pinned version
// exactly. It is called once at process start, before any grid is touched.
func CheckVersion(pinned string) error {
	if !semver.IsValid(pinned) {
		return NewVersionMismatch(LibraryVersion, pinned)
	}
	if semver.Compare(LibraryVersion, pinned) != 0 {
		return NewVersionMismatch(LibraryVersion, pinned)
	}
	return nil
}

// checkFileVersion verifies that a serialized grid can be decoded by this library.
func checkFileVersion(fileVersion string) error {
	if !semver.IsValid(fileVersion) || semver.Major(fileVersion) != semver.Major(LibraryVersion) {
		return NewVersionMismatch(fileVersion, LibraryVersion)
	}
	return nil
}
