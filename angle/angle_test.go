package angle

import (
	"errors"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	for _, test := range []struct {
		in, want float64
	}{
		{0, 0},
		{90, 90},
		{360, 0},
		{720, 0},
		{-90, 270},
		{-360, 0},
		{-720.5, 359.5},
		{359.5, 359.5},
		{1080.25, 0.25},
		{math.Copysign(0, -1), 0},
		{-1e-20, 0},
	} {
		got, err := Normalize(test.in)
		if err != nil {
			t.Errorf("Normalize(%v): %v", test.in, err)
			continue
		}
		if got.Degrees() != test.want {
			t.Errorf("Normalize(%v) = %v, want %v", test.in, got.Degrees(), test.want)
		}
		if math.Signbit(got.Degrees()) {
			t.Errorf("Normalize(%v) returned negative zero", test.in)
		}
	}
}

func TestNormalizeRange(t *testing.T) {
	for d := -2000.0; d <= 2000; d += 0.37 {
		a, err := Normalize(d)
		if err != nil {
			t.Fatalf("Normalize(%v): %v", d, err)
		}
		if a.Degrees() < 0 || a.Degrees() >= 360 {
			t.Errorf("Normalize(%v) = %v, outside [0, 360)", d, a.Degrees())
		}
	}
}

func TestNormalizeNotFinite(t *testing.T) {
	for _, in := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Normalize(in); !errors.Is(err, ErrNotFinite) {
			t.Errorf("Normalize(%v) error = %v, want ErrNotFinite", in, err)
		}
	}
	a := MustNormalize(10)
	if _, err := a.Add(math.NaN()); !errors.Is(err, ErrNotFinite) {
		t.Errorf("Add(NaN) error = %v, want ErrNotFinite", err)
	}
	if _, err := a.Sub(math.Inf(1)); !errors.Is(err, ErrNotFinite) {
		t.Errorf("Sub(+Inf) error = %v, want ErrNotFinite", err)
	}
}

func TestMustNormalizePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNormalize(NaN) did not panic")
		}
	}()
	MustNormalize(math.NaN())
}

func TestArithmetic(t *testing.T) {
	a := MustNormalize(350)
	sum, err := a.Add(20)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Degrees() != 10 {
		t.Errorf("350 + 20 = %v, want 10", sum.Degrees())
	}
	diff, err := MustNormalize(10).Sub(20)
	if err != nil {
		t.Fatal(err)
	}
	if diff.Degrees() != 350 {
		t.Errorf("10 - 20 = %v, want 350", diff.Degrees())
	}
	if a.Degrees() != 350 {
		t.Errorf("Add mutated receiver: %v", a.Degrees())
	}
}

func TestCompare(t *testing.T) {
	for _, test := range []struct {
		a, b float64
		want int
	}{
		{1, 359, -1},
		{359, 1, 1},
		{45, 45, 0},
		{0, 360, 0},
	} {
		if got := MustNormalize(test.a).Compare(MustNormalize(test.b)); got != test.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestClockwiseAndSigned(t *testing.T) {
	if got := MustNormalize(358).Clockwise(MustNormalize(2)); got != 4 {
		t.Errorf("Clockwise(358, 2) = %v, want 4", got)
	}
	if got := MustNormalize(2).Clockwise(MustNormalize(358)); got != 356 {
		t.Errorf("Clockwise(2, 358) = %v, want 356", got)
	}
	for _, test := range []struct{ in, want float64 }{
		{0, 0},
		{180, 180},
		{180.5, -179.5},
		{270, -90},
	} {
		if got := MustNormalize(test.in).Signed(); got != test.want {
			t.Errorf("Signed(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}
