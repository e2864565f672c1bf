package models

// DetailEntry is one exact-match detail bucket within a subcategory.
// Percentage is relative to the subcategory total.
type DetailEntry struct {
	Text       string  `bson:"text" json:"text"`
	Count      int     `bson:"count" json:"count"`
	Percentage float64 `bson:"percentage" json:"percentage"`
}

// SubcategoryNode groups records within a category. Percentage is relative to
// the category total. Exemplars holds up to 3 source metadata samples in
// first-seen order.
type SubcategoryNode struct {
	Name       string           `bson:"name" json:"name"`
	Total      int              `bson:"total" json:"total"`
	Percentage float64          `bson:"percentage" json:"percentage"`
	Details    []DetailEntry    `bson:"details" json:"details"`
	Exemplars  []SourceMetadata `bson:"exemplars" json:"exemplars"`
}

// CategoryNode is a top-level bucket. Percentage is relative to the grand total.
type CategoryNode struct {
	Name          string            `bson:"name" json:"name"`
	Total         int               `bson:"total" json:"total"`
	Percentage    float64           `bson:"percentage" json:"percentage"`
	Subcategories []SubcategoryNode `bson:"subcategories" json:"subcategories"`
}

// Hierarchy is the full category tree for one aggregation run.
// Total always equals the number of records that were counted (skipped
// records excluded).
type Hierarchy struct {
	Total      int            `bson:"total" json:"total"`
	Categories []CategoryNode `bson:"categories" json:"categories"`
}
