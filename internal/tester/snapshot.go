package tester

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/onekgame/onek/internal/backend"
	"github.com/onekgame/onek/internal/schema"
)

// UpdateSnapshotsEnv, when set to "1", makes CheckSnapshot write the
// observed output as the new baseline instead of comparing.
const UpdateSnapshotsEnv = "ONEK_UPDATE_SNAPSHOTS"

// RenderOutcome formats a settled world the way snapshots store it:
// the rendered map, then the visible notes under a separator.
func RenderOutcome(world schema.World) string {
	view := backend.Render(world)
	var b strings.Builder
	b.WriteString(view.ASCII())
	if len(view.Notes) > 0 {
		b.WriteString("\n--\n")
		for i, n := range view.Notes {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[%s] %s", n.Kind, n.Text)
		}
	}
	return b.String()
}

// CheckSnapshot compares got against the stored baseline dir/name.snap.
// A missing baseline or a mismatch is an error unless updates are
// enabled, in which case got becomes the new baseline.
func CheckSnapshot(dir, name, got string) error {
	path := filepath.Join(dir, name+".snap")
	if os.Getenv(UpdateSnapshotsEnv) == "1" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(got+"\n"), 0o644)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no baseline for %q; run with %s=1 to record one", name, UpdateSnapshotsEnv)
		}
		return err
	}
	want := strings.TrimSuffix(string(raw), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		return fmt.Errorf("snapshot %q mismatch (-baseline +got):\n%s", name, diff)
	}
	return nil
}
