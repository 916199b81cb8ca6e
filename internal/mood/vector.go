// Package mood maps raw emotion probabilities to discrete mood categories
// and assesses team-safety risk from aggregate metrics.
package mood

// Vector holds the five emotion probabilities produced by a classifier.
// Values are non-negative relative weights; they are not required to sum
// to exactly 1.
type Vector struct {
	// Neutral is the probability of a neutral emotional state.
	Neutral float64 `json:"neutral"`
	// Happy is the probability of happiness.
	Happy float64 `json:"happy"`
	// Sad is the probability of sadness.
	Sad float64 `json:"sad"`
	// Angry is the probability of anger.
	Angry float64 `json:"angry"`
	// Fearful is the probability of fear.
	Fearful float64 `json:"fearful"`
}
