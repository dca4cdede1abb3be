package domain

// Deck is a named namespace owning exactly one card set.
type Deck struct {
	ID   string `json:"id" validate:"required,max=128"`
	Name string `json:"name" validate:"required,max=64"`
}

// SeedEntry is one item from a seed vocabulary source. Only Key is required;
// vocabulary decks also carry a translation and a proficiency tier.
type SeedEntry struct {
	Key         string
	Translation string
	Tier        string
	Question    string
	Answer      string
}
