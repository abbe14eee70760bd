package charts

import (
	"bytes"
	"image/png"
	"testing"
)

func TestBarProducesPNG(t *testing.T) {
	data, err := Bar("satisfaction by class", []string{"Eco", "Business"}, []float64{3, 7})
	if err != nil {
		t.Fatalf("bar: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != width || cfg.Height != height {
		t.Fatalf("unexpected dimensions %dx%d", cfg.Width, cfg.Height)
	}
}

func TestLineProducesPNG(t *testing.T) {
	data, err := Line("delay trend", []float64{1, 4, 2, 8})
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestBarRejectsEmpty(t *testing.T) {
	if _, err := Bar("", nil, nil); err == nil {
		t.Fatal("expected error for empty values")
	}
}

func TestLineRejectsSinglePoint(t *testing.T) {
	if _, err := Line("", []float64{1}); err == nil {
		t.Fatal("expected error for single point")
	}
}
