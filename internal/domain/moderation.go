package domain

// ModerationVerdict is the per-file outcome of content screening. It is never
// persisted; it only gates Photo creation and explains rejections.
type ModerationVerdict struct {
	Safe   bool
	Reason string
	Scores map[string]float64 // per-label probabilities, empty when the check was skipped
	Score  float64            // aggregate over the explicit labels
	Err    error              // set when the filter failed open
}
