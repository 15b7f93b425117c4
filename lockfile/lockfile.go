// Package lockfile persists the controller's sole piece of durable state:
// a JSON {"running", "last_forecast_date"} record used both as a
// mutual-exclusion lock (spec §4.6) and as the watermark of the most
// recently completed cycle.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/erdc/rapidflow/cycle"
	"github.com/erdc/rapidflow/rferrors"
)

// Info is the lockfile's on-disk shape.
type Info struct {
	Running           bool            `json:"running"`
	LastForecastDate  cycle.Watermark `json:"last_forecast_date"`
}

// Default is the state an absent lockfile implies: not running, watermark
// at the epoch.
func Default() Info {
	return Info{Running: false, LastForecastDate: cycle.ZeroWatermark}
}

// Read loads the lockfile at path. A missing file is not an error: it
// returns Default(). A file that exists but fails to parse is
// ErrLockfileCorruption, since silently resetting state there could
// re-run a cycle the controller already completed.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("rapidflow: reading lockfile %s: %w", path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", rferrors.ErrLockfileCorruption, path, err)
	}
	return info, nil
}

// Write atomically persists info to path: it writes to a temp file in the
// same directory, then renames, so a crash mid-write never corrupts the
// previous lockfile.
func Write(path string, info Info) error {
	tmp := path + ".tmp"
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("rapidflow: marshaling lockfile: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("rapidflow: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rapidflow: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// Acquire reads the lockfile and, if it is not already marked running,
// writes it back with Running=true, preserving the prior watermark. It
// returns ErrLockHeld if another instance already holds the lock.
func Acquire(path string) (Info, error) {
	info, err := Read(path)
	if err != nil {
		return Info{}, err
	}
	if info.Running {
		return info, rferrors.ErrLockHeld
	}
	info.Running = true
	if err := Write(path, info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// Release clears Running and advances the watermark to w, the standard
// end-of-cycle update.
func Release(path string, w cycle.Watermark) error {
	return Write(path, Info{Running: false, LastForecastDate: w})
}

// ResetForReboot clears Running while preserving the existing watermark,
// matching the original's reset_lock_info_file: used at process start to
// recover from a crash that left Running=true without actually advancing
// the watermark.
func ResetForReboot(path string) error {
	info, err := Read(path)
	if err != nil {
		return err
	}
	if !info.Running {
		return nil
	}
	info.Running = false
	return Write(path, info)
}
