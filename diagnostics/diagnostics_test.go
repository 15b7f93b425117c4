package diagnostics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestRenderProducesFile(t *testing.T) {
	h := Hydrograph{
		Rivid:      42,
		Hours:      []float64{0, 6, 12, 18, 24},
		Mean:       []float64{10, 12, 15, 11, 9},
		UpperBound: []float64{12, 15, 20, 14, 11},
	}
	path := filepath.Join(t.TempDir(), "hydrograph.png")
	log := logrus.New().WithField("test", "TestRenderProducesFile")
	Render(h, path, log)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected plot file to exist: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty plot file")
	}
}

func TestRenderSwallowsMismatchedSeries(t *testing.T) {
	h := Hydrograph{
		Rivid: 1,
		Hours: []float64{0, 6, 12},
		Mean:  []float64{1, 2}, // deliberately short
	}
	path := filepath.Join(t.TempDir(), "hydrograph.png")
	log := logrus.New().WithField("test", "TestRenderSwallowsMismatchedSeries")

	// Must not panic; the bad file simply won't be created.
	Render(h, path, log)
	if _, err := os.Stat(path); err == nil {
		t.Error("expected no file written for mismatched series")
	}
}
