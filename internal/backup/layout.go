package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Naming layouts for the output tree: <root>/<2006-01-02>/vault-export-<20060102-150405>.json
const (
	DateDirLayout   = "2006-01-02"
	TimestampLayout = "20060102-150405"
	ArtifactPrefix  = "vault-export-"
	ArtifactExt     = ".json"
)

// DateDir returns the directory holding the artifacts created on the day of t.
func DateDir(root string, t time.Time) string {
	return filepath.Join(root, t.Format(DateDirLayout))
}

// ArtifactName returns the file name of an artifact created at t.
func ArtifactName(t time.Time) string {
	return ArtifactPrefix + t.Format(TimestampLayout) + ArtifactExt
}

// ArtifactGlob matches every artifact inside a date directory.
const ArtifactGlob = ArtifactPrefix + "*" + ArtifactExt

// provisionDir creates the date directory, reusing it when it already exists.
func provisionDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating backup directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("backup path %s is not a directory", dir)
	}
	return nil
}
