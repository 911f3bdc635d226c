// Package risk holds the shared risk-assessment vocabulary: the bounded
// score, the derived level, and the response shape every scorer returns.
package risk

// Level buckets a clamped score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Score thresholds for level derivation.
const (
	highThreshold   = 70
	mediumThreshold = 35
)

// RecommendedAction is a single protective step surfaced to the user.
type RecommendedAction struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// SafeScript is a two-part advisory attached when the primary matched
// signal has a known de-escalation line.
type SafeScript struct {
	SayThis        string `json:"say_this"`
	IfTheyPushBack string `json:"if_they_push_back"`
}

// Response is the result of one assessment. Immutable once returned.
type Response struct {
	Score              int                 `json:"score"`
	Level              Level               `json:"level"`
	Reasons            []string            `json:"reasons"`
	NextAction         string              `json:"next_action"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
	SafeScript         *SafeScript         `json:"safe_script,omitempty"`
	Metadata           map[string]any      `json:"metadata"`
}

// Clamp bounds a raw weight sum into [0, 100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// LevelFor derives the level from an already-clamped score.
func LevelFor(score int) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// NewResponse clamps the score and derives the level. Callers supply a
// non-empty reasons slice; scorers emit their neutral sentinel when no
// signal fired.
func NewResponse(score int, reasons []string, nextAction string, actions []RecommendedAction, script *SafeScript, metadata map[string]any) Response {
	clamped := Clamp(score)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Response{
		Score:              clamped,
		Level:              LevelFor(clamped),
		Reasons:            reasons,
		NextAction:         nextAction,
		RecommendedActions: actions,
		SafeScript:         script,
		Metadata:           metadata,
	}
}
