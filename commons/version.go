package commons

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

var (
	serviceVersion string = "v0.4.0"
	gitCommit      string
	buildDate      string
)

// VersionInfo object contains version related info
type VersionInfo struct {
	ServiceVersion string `json:"serviceVersion"`
	GitCommit      string `json:"gitCommit"`
	BuildDate      string `json:"buildDate"`
}

// GetVersion returns VersionInfo object
func GetVersion() VersionInfo {
	return VersionInfo{
		ServiceVersion: serviceVersion,
		GitCommit:      gitCommit,
		BuildDate:      buildDate,
	}
}

// GetVersionJSON returns VersionInfo in JSON string
func GetVersionJSON() (string, error) {
	info := GetVersion()
	marshalled, err := json.MarshalIndent(&info, "", "  ")
	if err != nil {
		return "", xerrors.Errorf("failed to marshal version info: %w", err)
	}
	return string(marshalled), nil
}

// GetServiceVersion returns service version in string
func GetServiceVersion() string {
	return serviceVersion
}
