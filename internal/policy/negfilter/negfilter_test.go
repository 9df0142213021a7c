package negfilter

import "testing"

func TestSize_Clamps(t *testing.T) {
	if got := Size(1, 0.01); got < MinBits {
		t.Errorf("Size(1, 0.01) = %d, want >= MinBits (%d)", got, MinBits)
	}
	if got := Size(1<<40, 0.01); got > MaxBits {
		t.Errorf("Size(2^40, 0.01) = %d, want <= MaxBits (%d)", got, MaxBits)
	}
}

func TestSize_InvalidPDefaultsTo1Percent(t *testing.T) {
	a := Size(1_000_000, 0.01)
	b := Size(1_000_000, 0)
	if a != b {
		t.Errorf("Size with p=0 should fall back to 0.01: got %d, want %d", b, a)
	}
}

func TestFilter_AddThenCheck(t *testing.T) {
	f := New(1000, 0.01)
	f.Add("ads.example.com")
	f.Add("tracker.example.net")

	if !f.Check("ads.example.com") {
		t.Error("Check(ads.example.com) = false after Add, want true")
	}
	if !f.Check("tracker.example.net") {
		t.Error("Check(tracker.example.net) = false after Add, want true")
	}
}

func TestFilter_NeverFalseNegative(t *testing.T) {
	f := New(500, 0.01)
	names := []string{"a.com", "b.com", "c.example.org", "d.test", "e.invalid"}
	for _, n := range names {
		f.Add(n)
	}
	for _, n := range names {
		if !f.Check(n) {
			t.Errorf("Check(%q) = false, want true (no false negatives allowed)", n)
		}
	}
}

func TestFilter_AbsentNameLikelyRejected(t *testing.T) {
	f := New(10, 0.01)
	f.Add("known.example.com")

	if f.Check("definitely-not-added.example.org") {
		t.Log("Check reported a possible false positive for an unadded name (acceptable at low probability)")
	}
}

func TestHash1AndHash2_Deterministic(t *testing.T) {
	const m = 1000003
	if hash1("example.com", m) != hash1("example.com", m) {
		t.Error("hash1 is not deterministic")
	}
	if hash2("example.com", m) != hash2("example.com", m) {
		t.Error("hash2 is not deterministic")
	}
}

func TestHash1_MatchesMultiplicative31Formula(t *testing.T) {
	const m = 1 << 20
	s := "abc"
	var want uint64
	for i := 0; i < len(s); i++ {
		want = want*31 + uint64(s[i])
	}
	want %= m
	if got := hash1(s, m); got != want {
		t.Errorf("hash1(%q) = %d, want %d", s, got, want)
	}
}

func TestHash2_MatchesDJB2XORFormula(t *testing.T) {
	const m = 1 << 20
	s := "abc"
	h := uint64(5381)
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) ^ uint64(s[i])
	}
	h %= m
	if got := hash2(s, m); got != h {
		t.Errorf("hash2(%q) = %d, want %d", s, got, h)
	}
}
