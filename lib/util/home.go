package util

import (
	"os"
)

// UserHome returns the current user's home directory, falling back to
// $HOME, %USERPROFILE% and finally the working directory.
func UserHome() string {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		return homeDir
	}
	for _, env := range []string{"HOME", "USERPROFILE"} {
		if home := os.Getenv(env); home != "" {
			log.WithError(err).WithField("env", env).Warn("user_home_dir_failed_using_env")
			return home
		}
	}
	if wd, wdErr := os.Getwd(); wdErr == nil {
		log.WithError(err).Warn("user_home_dir_failed_using_working_dir")
		return wd
	}
	return "."
}
