package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock"
)

func TestWaitForMount_Ready(t *testing.T) {
	dir := t.TempDir()

	err := WaitForMount(context.Background(), MountPolicy{
		Path:     dir,
		Attempts: 1,
		Delay:    time.Millisecond,
		Clock:    clock.WallClock,
	})
	if err != nil {
		t.Fatalf("WaitForMount() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("write check file left behind: %v", entries)
	}
}

func TestWaitForMount_BecomesReady(t *testing.T) {
	mount := filepath.Join(t.TempDir(), "mnt")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.Mkdir(mount, 0700)
	}()

	err := WaitForMount(context.Background(), MountPolicy{
		Path:     mount,
		Attempts: 500,
		Delay:    2 * time.Millisecond,
		Clock:    clock.WallClock,
	})
	if err != nil {
		t.Fatalf("WaitForMount() error = %v", err)
	}
}

func TestWaitForMount_Exhausted(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "missing path",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing")
			},
		},
		{
			name: "path is a file",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "file")
				if err := os.WriteFile(path, nil, 0600); err != nil {
					t.Fatal(err)
				}
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WaitForMount(context.Background(), MountPolicy{
				Path:     tt.setup(t),
				Attempts: 3,
				Delay:    time.Millisecond,
				Clock:    clock.WallClock,
			})
			if !errors.Is(err, ErrMountUnavailable) {
				t.Fatalf("WaitForMount() error = %v, want ErrMountUnavailable", err)
			}
		})
	}
}

func TestDateDirAndArtifactName(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if got, want := DateDir("/backup", ts), filepath.Join("/backup", "2026-01-02"); got != want {
		t.Errorf("DateDir() = %s, want %s", got, want)
	}
	if got, want := ArtifactName(ts), "vault-export-20260102-030405.json"; got != want {
		t.Errorf("ArtifactName() = %s, want %s", got, want)
	}
	if ok, _ := filepath.Match(ArtifactGlob, ArtifactName(ts)); !ok {
		t.Errorf("ArtifactGlob does not match %s", ArtifactName(ts))
	}
}

func TestProvisionDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "2026-01-02")

	for i := range 2 {
		if err := provisionDir(dir); err != nil {
			t.Fatalf("provisionDir() call %d error = %v", i+1, err)
		}
	}
}
