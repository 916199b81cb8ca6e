package mood

// Category is a discrete mood bucket derived from an emotion vector and an
// energy level. Categories are mutually exclusive.
type Category string

const (
	// Energised indicates high happiness combined with good energy.
	Energised Category = "energised"
	// Stressed indicates dominant anger or fear.
	Stressed Category = "stressed"
	// Flat indicates a neutral, low-energy state.
	Flat Category = "flat"
	// Thoughtful indicates a calm state with moderate energy.
	Thoughtful Category = "thoughtful"
	// Volatile covers everything that matches no other category.
	Volatile Category = "volatile"
)

// displayNames maps categories to their dashboard display names.
var displayNames = map[Category]string{
	Energised:  "Energised",
	Stressed:   "Stressed/Tense",
	Flat:       "Flat/Disengaged",
	Thoughtful: "Thoughtful/Constructive",
	Volatile:   "Volatile/Unstable",
}

// Display returns the human-readable display name for the category.
// Unknown categories are returned as-is.
func (c Category) Display() string {
	if name, ok := displayNames[c]; ok {
		return name
	}
	return string(c)
}

// IsValid returns true if the category is one of the five known buckets.
func (c Category) IsValid() bool {
	_, ok := displayNames[c]
	return ok
}

// Categorize maps an emotion vector and an energy level (0-100 scale) to a
// mood category. Rules are evaluated in order and the first match wins; the
// ordering is part of the contract, not an implementation detail.
func Categorize(v Vector, energy float64) Category {
	// High happiness + good energy
	if v.Happy > 0.4 && energy > 30 {
		return Energised
	}

	// Anger or fear dominant
	if v.Angry+v.Fearful > 0.35 || (energy > 40 && v.Angry > 0.25) {
		return Stressed
	}

	// Neutral + low energy
	if v.Neutral > 0.55 && energy < 20 {
		return Flat
	}

	// Calm and moderate
	if v.Neutral > 0.35 && energy >= 20 && energy <= 45 && v.Sad < 0.25 {
		return Thoughtful
	}

	return Volatile
}
