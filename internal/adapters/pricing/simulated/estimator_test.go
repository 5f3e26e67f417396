package simulated

import (
	"context"
	"testing"
)

func TestRates_Fare(t *testing.T) {
	t.Parallel()

	r := DefaultRates()
	cases := []struct {
		miles        float64
		wantDistance float64
		wantPrice    float64
	}{
		{10, 10, 4.9},
		{50.4, 50, 12.58},
		{109.99, 110, 23.9},
	}
	for _, tc := range cases {
		got := r.Fare(tc.miles)
		if got.Distance != tc.wantDistance || got.Price != tc.wantPrice {
			t.Fatalf("Fare(%v)=%+v, want distance=%v price=%v", tc.miles, got, tc.wantDistance, tc.wantPrice)
		}
	}

	floor := Rates{BaseFare: 1, PerMile: 0.1, MinMiles: 0, MaxMiles: 5, MinimumFare: 7.5}
	if got := floor.Fare(2); got.Price != 7.5 {
		t.Fatalf("minimum fare not applied: %+v", got)
	}
}

func TestEstimator_StaysInRange(t *testing.T) {
	t.Parallel()

	e, err := NewSeeded(DefaultRates(), 1, 2)
	if err != nil {
		t.Fatalf("NewSeeded: %v", err)
	}
	for i := 0; i < 500; i++ {
		f, err := e.Estimate(context.Background(), "North Hall", "Station")
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		if f.Distance < 10 || f.Distance > 110 {
			t.Fatalf("distance %v out of range", f.Distance)
		}
		if f.Price < 4.9 || f.Price > 23.9 {
			t.Fatalf("price %v out of range", f.Price)
		}
	}
}

func TestEstimator_SeededIsDeterministic(t *testing.T) {
	t.Parallel()

	a, _ := NewSeeded(DefaultRates(), 7, 7)
	b, _ := NewSeeded(DefaultRates(), 7, 7)
	for i := 0; i < 10; i++ {
		fa, _ := a.Estimate(context.Background(), "x", "y")
		fb, _ := b.Estimate(context.Background(), "x", "y")
		if fa != fb {
			t.Fatalf("draw %d differs: %+v vs %+v", i, fa, fb)
		}
	}
}

func TestNew_RejectsBadRates(t *testing.T) {
	t.Parallel()

	if _, err := New(Rates{PerMile: -1, MaxMiles: 10}); err == nil {
		t.Fatalf("expected error for negative rate")
	}
	if _, err := New(Rates{MinMiles: 20, MaxMiles: 10}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}
