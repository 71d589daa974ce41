package grace

import "testing"

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		sample  float32
		limit   float32
		grace   int
		counter int
		want    Verdict
	}{
		{"under limit, fresh counter", 50, 70, 3, 0, Ok},
		{"at limit, counter below grace", 70, 70, 3, 1, Exceeding},
		{"at limit, counter equals grace", 75, 70, 3, 3, StartsToExceed},
		{"above limit, counter past grace", 90, 70, 3, 4, Exceeding},
		{"under limit, counter past grace", 50, 70, 3, 4, BackToOk},
		{"under limit, counter equal to grace", 50, 70, 3, 3, Ok},
		{"zero grace alerts immediately", 80, 70, 0, 0, StartsToExceed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.sample, tc.limit, tc.grace, tc.counter)
			if got != tc.want {
				t.Errorf("Evaluate(%v, %v, %d, %d) = %v, want %v", tc.sample, tc.limit, tc.grace, tc.counter, got, tc.want)
			}
		})
	}
}

func TestEvaluateSequence(t *testing.T) {
	// Mirrors the original Rust actor's own test: temperature exceeds a
	// limit of 70 with grace 3; the first 3 exceeding samples are silent,
	// the 4th (counter == grace) alerts exactly once, then one sample under
	// the limit recovers in one step.
	const limit = 70.0
	const gracePeriod = 3
	counter := 0

	exceedingSamples := 0
	var lastVerdict Verdict
	for i := 0; i <= gracePeriod; i++ {
		v := Evaluate(75, limit, gracePeriod, counter)
		lastVerdict = v
		if v == Exceeding || v == StartsToExceed {
			counter++
			exceedingSamples++
		}
	}

	if lastVerdict != StartsToExceed {
		t.Fatalf("expected StartsToExceed on sample grace+1, got %v", lastVerdict)
	}
	if counter != gracePeriod+1 {
		t.Fatalf("expected counter to reach %d, got %d", gracePeriod+1, counter)
	}

	v := Evaluate(50, limit, gracePeriod, counter)
	if v != BackToOk {
		t.Fatalf("expected BackToOk after recovery, got %v", v)
	}
}
