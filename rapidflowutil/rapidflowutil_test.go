package rapidflowutil

import (
	"testing"

	"github.com/erdc/rapidflow/objectstore"
)

func TestCommonOptionsRegisterDefaults(t *testing.T) {
	if got := Cfg.GetString("log-level"); got != "info" {
		t.Errorf("default log-level = %q, want %q", got, "info")
	}
	if got := Cfg.GetInt("concurrency"); got != 4 {
		t.Errorf("default concurrency = %d, want 4", got)
	}
	if got := Cfg.GetString("work-dir"); got != "/tmp/rapidflow" {
		t.Errorf("default work-dir = %q, want %q", got, "/tmp/rapidflow")
	}
	if got := Cfg.GetString("dispatch-backend"); got != "local" {
		t.Errorf("default dispatch-backend = %q, want %q", got, "local")
	}
}

func TestDispatchBackendNameRejectsUnknown(t *testing.T) {
	Cfg.Set("dispatch-backend", "condor")
	defer Cfg.Set("dispatch-backend", "local")

	if _, err := DispatchBackendName(); err == nil {
		t.Fatal("expected an error for an unrecognized dispatch backend")
	}
}

func TestDispatchBackendNameAcceptsKnownValues(t *testing.T) {
	for _, v := range []string{"local", "k8s"} {
		Cfg.Set("dispatch-backend", v)
		got, err := DispatchBackendName()
		if err != nil {
			t.Fatalf("DispatchBackendName() for %q: %v", v, err)
		}
		if got != v {
			t.Errorf("DispatchBackendName() = %q, want %q", got, v)
		}
	}
	Cfg.Set("dispatch-backend", "local")
}

func TestStringSliceAcceptsCommaSeparatedString(t *testing.T) {
	Cfg.Set("regions", "nfie-huc2_12,nfie-huc2_13")
	defer Cfg.Set("regions", []string{})

	got, err := StringSlice("regions")
	if err != nil {
		t.Fatalf("StringSlice: %v", err)
	}
	if len(got) != 2 || got[0] != "nfie-huc2_12" || got[1] != "nfie-huc2_13" {
		t.Errorf("StringSlice(regions) = %v, want [nfie-huc2_12 nfie-huc2_13]", got)
	}
}

func TestBuildSourceRequiresSourceFlag(t *testing.T) {
	Cfg.Set("source", "")
	if _, err := buildSource(); err == nil {
		t.Fatal("expected an error when --source is unset")
	}
}

func TestBuildSourceLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	Cfg.Set("source", dir)
	defer Cfg.Set("source", "")

	src, err := buildSource()
	if err != nil {
		t.Fatalf("buildSource: %v", err)
	}
	if _, ok := src.(*objectstore.DirSource); !ok {
		t.Errorf("buildSource(%q) = %T, want *objectstore.DirSource", dir, src)
	}
}
