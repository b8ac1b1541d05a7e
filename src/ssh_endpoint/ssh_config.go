package ssh_endpoint

import (
	"log/slog"
	"os"
	"strings"
)

// CleanupSshConfigValue strips quotes and expands $HOME and a leading ~/
// in a value read from ssh_config.
func CleanupSshConfigValue(value string) string {
	replaced := strings.Trim(value, "\"")

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("Error getting user home dir", "err", err)
		return replaced
	}

	replaced = strings.ReplaceAll(replaced, "$HOME", userHomeDir)
	if strings.HasPrefix(replaced, "~/") {
		replaced = userHomeDir + replaced[1:]
	}

	return replaced
}
