package parser

import "regexp"

// Selectors isolates the DOM knowledge of one timeline layout.
// Sites change their markup frequently, so every selector lives here.
type Selectors struct {
	Candidate string

	StatusLink    string
	StatusPattern *regexp.Regexp
	// IDAttributes are read off the candidate node itself, in order.
	IDAttributes []string
	// GenericIDValues are container markers shared by every post and never identify one.
	GenericIDValues []string

	Content     string
	AltContent  []string
	Blocks      string
	MinBlockLen int

	Time string

	AuthorName   string
	AuthorLink   string
	ProfileLinks string

	Anchors     string
	ProfilePath *regexp.Regexp
	ShortLink   string
}

// TwitterSelectors returns the selector set for the twitter.com / x.com timeline.
func TwitterSelectors() Selectors {
	return Selectors{
		Candidate: `article, [data-testid="tweet"], [role="article"]`,

		StatusLink:      `a[href*="/status/"]`,
		StatusPattern:   regexp.MustCompile(`/status/(\d+)`),
		IDAttributes:    []string{"data-testid", "data-tweet-id", "aria-labelledby"},
		GenericIDValues: []string{"tweet", "cellInnerDiv"},

		Content: `[data-testid="tweetText"]`,
		AltContent: []string{
			`[data-testid="tweet"] div[lang]`,
			`div[lang]`,
			`[role="article"] div[dir="auto"]`,
		},
		Blocks:      `div, p, blockquote`,
		MinBlockLen: 15,

		Time: `time`,

		AuthorName:   `[data-testid="User-Name"] a[role="link"]`,
		AuthorLink:   `a[role="link"]`,
		ProfileLinks: `a[href^="/"][role="link"]:not([href*="search"]):not([href*="status"])`,

		Anchors:     `a[href]`,
		ProfilePath: regexp.MustCompile(`^/[^/]+/?$`),
		ShortLink:   "t.co/",
	}
}
