package simtypes

import (
	"math/rand"
	"testing"
)

func newTestRNG(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

func TestTickFilenameRoundTrip(t *testing.T) {
	for _, tick := range []Tick{0, 1, 599, 600, 36000, 123456789} {
		name := tick.AsFilename()
		parsed, err := ParseFilename(name)
		if err != nil {
			t.Fatalf("ParseFilename(%q): %v", name, err)
		}
		if parsed != tick {
			t.Fatalf("round trip of %d gave %d", tick, parsed)
		}
	}
}

func TestTickFilenameWithExtension(t *testing.T) {
	parsed, err := ParseFilename(Tick(42).AsFilename() + ".json")
	if err != nil {
		t.Fatalf("ParseFilename with extension: %v", err)
	}
	if parsed != 42 {
		t.Fatalf("got %d, want 42", parsed)
	}
}

func TestTickFilenameRejectsGarbage(t *testing.T) {
	for _, name := range []string{"", "tick_", "tick_abc", "snapshot_00001"} {
		if _, err := ParseFilename(name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestTickFilenamesSortLexically(t *testing.T) {
	if Tick(9).AsFilename() >= Tick(10).AsFilename() {
		t.Fatal("filenames must sort in tick order")
	}
}

func TestIsMultipleOf(t *testing.T) {
	cases := []struct {
		t, other Tick
		want     bool
	}{
		{0, 10, true},
		{10, 10, true},
		{15, 10, false},
		{10, 0, false},
		{10, -1, false},
	}
	for _, c := range cases {
		if got := c.t.IsMultipleOf(c.other); got != c.want {
			t.Fatalf("Tick(%d).IsMultipleOf(%d) = %v, want %v", c.t, c.other, got, c.want)
		}
	}
}

func TestTickClockString(t *testing.T) {
	if got := Tick(0).String(); got != "00:00:00.00" {
		t.Fatalf("zero tick renders as %q", got)
	}
	// 600 ticks = one minute at 100ms per tick.
	if got := Tick(600).String(); got != "00:01:00.00" {
		t.Fatalf("one minute renders as %q", got)
	}
}

func TestVehicleGenerationIsDeterministic(t *testing.T) {
	a := GenerateCar(3, newTestRNG(7))
	b := GenerateCar(3, newTestRNG(7))
	if a != b {
		t.Fatalf("same seed generated different cars: %+v vs %+v", a, b)
	}
	bus := GenerateBus(4, newTestRNG(7))
	if bus.LengthM < busLengthMin || bus.LengthM > busLengthMax {
		t.Fatalf("bus length %.2f out of range", bus.LengthM)
	}
	bike := GenerateBike(5, newTestRNG(7))
	if bike.MaxSpeedMPS < bikeSpeedMin || bike.MaxSpeedMPS > bikeSpeedMax {
		t.Fatalf("bike speed %.2f out of range", bike.MaxSpeedMPS)
	}
}
