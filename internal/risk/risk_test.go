package risk

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-10, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{145, 100},
	}
	for _, tc := range cases {
		if got := Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestLevelFor_Boundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Level
	}{
		{0, LevelLow},
		{34, LevelLow},
		{35, LevelMedium},
		{69, LevelMedium},
		{70, LevelHigh},
		{100, LevelHigh},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.score); got != tc.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestNewResponse_ClampsAndDerives(t *testing.T) {
	resp := NewResponse(145, []string{"r"}, "act", nil, nil, nil)
	if resp.Score != 100 {
		t.Errorf("expected score 100, got %d", resp.Score)
	}
	if resp.Level != LevelHigh {
		t.Errorf("expected high level, got %s", resp.Level)
	}
	if resp.Metadata == nil {
		t.Error("expected non-nil metadata")
	}
}
