package aws

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws/defaults"
	"gopkg.in/ini.v1"
)

// sharedFiles returns the credentials and config file locations, honouring
// the AWS_SHARED_CREDENTIALS_FILE and AWS_CONFIG_FILE overrides.
func sharedFiles() (string, string) {
	credsPath := os.Getenv("AWS_SHARED_CREDENTIALS_FILE")
	if credsPath == "" {
		credsPath = defaults.SharedCredentialsFilename()
	}

	configPath := os.Getenv("AWS_CONFIG_FILE")
	if configPath == "" {
		configPath = defaults.SharedConfigFilename()
	}
	return credsPath, configPath
}

// profileSections adds the section names of an ini file to profiles.
// Sections in the config file are named "profile <name>".
func profileSections(path string, profiles map[string]struct{}) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		profiles[strings.TrimPrefix(section.Name(), "profile ")] = struct{}{}
	}
	return nil
}

// ListProfiles returns the sorted names of all configured AWS profiles
func ListProfiles() ([]string, error) {
	credsPath, configPath := sharedFiles()

	profiles := make(map[string]struct{})
	if err := profileSections(credsPath, profiles); err != nil {
		return nil, err
	}
	if err := profileSections(configPath, profiles); err != nil {
		return nil, err
	}

	result := make([]string, 0, len(profiles))
	for profile := range profiles {
		result = append(result, profile)
	}
	sort.Strings(result)

	return result, nil
}

// IsValidProfile checks if a profile exists
func IsValidProfile(profile string) bool {
	profiles, err := ListProfiles()
	if err != nil {
		return false
	}
	return slices.Contains(profiles, profile)
}
