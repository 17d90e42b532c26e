package util

import (
	"os"
	"path/filepath"
	"strings"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("GATTCLIENT_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".gattclient")
	}
	return filepath.Join(home, ".gattclient")
}

// GetDeviceCacheDir returns the cache directory for a specific peer.
// Colons in Bluetooth addresses are replaced so the name is portable.
func GetDeviceCacheDir(peer string) string {
	return filepath.Join(GetDataDir(), SanitizeName(peer))
}

// SanitizeName makes an address or URL usable as a single path element
func SanitizeName(s string) string {
	r := strings.NewReplacer(":", "-", "/", "_", "\\", "_", "?", "_", "*", "_")
	return r.Replace(s)
}
