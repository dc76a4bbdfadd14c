// Package parse converts the classifieds site's HTML into typed partial
// records. Every extraction step is independently optional: parsers populate
// what they can find and never fail on a single missing field.
package parse

// Category is one discovered brand or model link.
type Category struct {
	Name  string
	Slug  string
	URL   string
	Count int
}

// Record is one partially parsed listing. Pointer fields are nil when the
// markup did not yield a value.
type Record struct {
	ExternalID string
	Brand      string
	Model      string
	URL        string
	Title      string

	Price        *int
	Year         *int
	Mileage      *int
	EngineVolume *float64

	EngineText     string
	EngineType     string
	Transmission   string
	BodyType       string
	Color          string
	TechInspection string
	Region         string
	ListingDate    string // ISO yyyy-mm-dd
	Thumbnail      string

	// Exchange marks trade/want-to-buy posts that must never be stored.
	Exchange bool
}

// Viable reports whether the record carries enough economic data to store.
func (r *Record) Viable() bool {
	return !r.Exchange && r.Price != nil && r.Year != nil
}

func intPtr(v int) *int { return &v }
