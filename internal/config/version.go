package config

import "fmt"

// CurrentVersion is the configuration file version this build reads.
const CurrentVersion = 1

// VersionError reports a config file written for another version.
type VersionError struct {
	Version int
}

func (e *VersionError) Error() string {
	switch {
	case e.Version <= 0:
		return fmt.Sprintf("config is missing `version: %d`", CurrentVersion)
	case e.Version > CurrentVersion:
		return fmt.Sprintf("config version %d is newer than this build supports (%d); upgrade pinboard", e.Version, CurrentVersion)
	default:
		return fmt.Sprintf("config version %d is no longer supported; update the file to version %d", e.Version, CurrentVersion)
	}
}

// ValidateVersion rejects any version other than CurrentVersion.
func ValidateVersion(version int) error {
	if version != CurrentVersion {
		return &VersionError{Version: version}
	}
	return nil
}
