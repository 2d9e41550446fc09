package harvest

// Identifier names one app in the Steam catalog. Identifiers are opaque
// positive integers; the universe of identifiers is discovered once and
// never mutated afterwards.
type Identifier int64

// Bundle carries the raw payloads of the three resources fetched for one
// identifier. Payloads are kept unparsed; the extractor owns decoding.
type Bundle struct {
	AppID     Identifier
	Details   []byte
	Reviews   []byte
	StorePage []byte
}

// ValidationIssue describes why a record failed schema validation.
type ValidationIssue struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Record is the structured representation of one app, as written to the
// ledger files. A non-nil ValidationError tags the record invalid and
// routes it to the invalid ledger.
type Record struct {
	AppID               Identifier                      `json:"app_id"`
	Name                string                          `json:"name"`
	Image               string                          `json:"image,omitempty"`
	Type                string                          `json:"type"`
	ShortDescription    string                          `json:"short_description,omitempty"`
	DetailedDescription string                          `json:"detailed_description,omitempty"`
	IsFree              bool                            `json:"is_free"`
	ReleaseDate         string                          `json:"release_date"`
	Developers          []string                        `json:"developers"`
	Publishers          []string                        `json:"publishers"`
	Franchise           string                          `json:"franchise,omitempty"`
	Genres              []string                        `json:"genres"`
	Categories          []string                        `json:"categories"`
	UserTags            []string                        `json:"user_tags"`
	Platforms           []string                        `json:"platforms"`
	Requirements        map[string]PlatformRequirements `json:"system_requirements,omitempty"`
	ControllerSupport   string                          `json:"controller_support,omitempty"`
	Languages           LanguageSupport                 `json:"languages"`
	Ratings             Ratings                         `json:"ratings"`
	Commercial          Commercial                      `json:"commercial"`
	Content             Content                         `json:"content"`
	ValidationError     *ValidationIssue                `json:"validation_error,omitempty"`
}

// Valid reports whether the record passed schema validation.
func (r *Record) Valid() bool {
	return r.ValidationError == nil
}

// PlatformRequirements holds the parsed minimum/recommended requirement
// blocks for one platform.
type PlatformRequirements struct {
	Minimum     map[string]string `json:"minimum,omitempty"`
	Recommended map[string]string `json:"recommended,omitempty"`
}

// LanguageSupport splits supported languages by audio coverage.
type LanguageSupport struct {
	FullAudio []string `json:"full_audio"`
	Partial   []string `json:"partial"`
}

// Ratings aggregates critic and user review signals.
type Ratings struct {
	MetacriticScore     *int        `json:"metacritic_score"`
	RecommendationTotal *int        `json:"recommendation_total"`
	UserReviews         UserReviews `json:"user_reviews"`
}

// UserReviews summarizes the review endpoint's query summary.
type UserReviews struct {
	TotalPositive int     `json:"total_positive"`
	Total         int     `json:"total"`
	PositivePct   float64 `json:"positive_pct"`
}

// Commercial captures pricing information in the store currency's
// smallest unit (cents).
type Commercial struct {
	InitialPrice int     `json:"initial_price"`
	FinalPrice   int     `json:"final_price"`
	DiscountPct  int     `json:"discount_pct"`
	Currency     string  `json:"currency"`
	DLC          []int64 `json:"dlc"`
}

// Content counts feature-level content such as achievements.
type Content struct {
	Achievements int `json:"achievements"`
}
