package util

import (
	"path/filepath"
	"testing"
)

func TestGetDataDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GATTCLIENT_DIR", dir)

	if got := GetDataDir(); got != dir {
		t.Errorf("GetDataDir() = %s, want %s", got, dir)
	}
	want := filepath.Join(dir, "C4-7C-8D-6A-01-02")
	if got := GetDeviceCacheDir("C4:7C:8D:6A:01:02"); got != want {
		t.Errorf("GetDeviceCacheDir() = %s, want %s", got, want)
	}
}
