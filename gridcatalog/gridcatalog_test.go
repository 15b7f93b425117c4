package gridcatalog

import "testing"

func TestLoad(t *testing.T) {
	c, err := Load("testdata/grids.toml")
	if err != nil {
		t.Fatal(err)
	}
	if !c.NewGeneration("tco639") {
		t.Error("expected tco639 to be new-generation")
	}
	if c.NewGeneration("t639") {
		t.Error("expected t639 to not be new-generation")
	}
	if c.NewGeneration("unknown-tag") {
		t.Error("unknown tags should default to not-new-generation")
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if !c.NewGeneration("tco639") {
		t.Error("expected default catalog to mark tco639 new-generation")
	}
}
