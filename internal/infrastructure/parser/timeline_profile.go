package parser

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/scanner"
)

const (
	compositeLeadLen = 40
	compositeTextLen = 20
)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// TimelineProfile reads posts out of a rendered social timeline.
type TimelineProfile struct {
	name    string
	baseURL *url.URL
	sel     Selectors

	refStrategies    []Strategy[domain.Reference]
	textStrategies   []Strategy[string]
	authorStrategies []Strategy[string]
}

var _ scanner.Profile = (*TimelineProfile)(nil)

// NewTimelineProfile wires a selector set; relative links are resolved against baseURL.
func NewTimelineProfile(name, baseURL string, sel Selectors) *TimelineProfile {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || base.Scheme == "" {
		base = &url.URL{Scheme: "https", Host: "twitter.com"}
	}
	p := &TimelineProfile{name: name, baseURL: base, sel: sel}
	p.refStrategies = []Strategy[domain.Reference]{
		{Name: "status-link", Extract: p.statusReference},
		{Name: "attribute", Extract: p.attributeReference},
		{Name: "composite", Extract: p.compositeReference},
	}

	p.textStrategies = []Strategy[string]{{Name: "content", Extract: p.selectorText(sel.Content)}}
	for _, alt := range sel.AltContent {
		p.textStrategies = append(p.textStrategies, Strategy[string]{Name: "alt:" + alt, Extract: p.selectorText(alt)})
	}
	p.textStrategies = append(p.textStrategies,
		Strategy[string]{Name: "longest-block", Extract: p.longestBlock},
		Strategy[string]{Name: "full-text", Extract: fullText},
	)

	p.authorStrategies = []Strategy[string]{
		{Name: "author-name", Extract: p.authorName},
		{Name: "near-time", Extract: p.authorNearTime},
		{Name: "profile-link", Extract: p.authorProfileLink},
	}
	return p
}

// NewTwitterProfile is the default profile for twitter.com timelines.
func NewTwitterProfile() *TimelineProfile {
	return NewTimelineProfile("twitter", "https://twitter.com", TwitterSelectors())
}

// NewXProfile reads the same layout served from x.com.
func NewXProfile() *TimelineProfile {
	return NewTimelineProfile("x", "https://x.com", TwitterSelectors())
}

// Name identifies the profile inside the registry.
func (p *TimelineProfile) Name() string {
	return p.name
}

// CandidateSelector matches every node that might be a post.
func (p *TimelineProfile) CandidateSelector() string {
	return p.sel.Candidate
}

// Extract pulls every field out of one candidate node.
func (p *TimelineProfile) Extract(node *goquery.Selection, now time.Time) (domain.Fields, error) {
	var fields domain.Fields

	fields.Timestamp, fields.TimestampKnown = p.timestamp(node, now)
	fields.Ref, _, _ = First(node, p.refStrategies)

	text, _, ok := First(node, p.textStrategies)
	if !ok {
		return fields, domain.ErrNoText
	}
	fields.Text = text

	author, _, ok := First(node, p.authorStrategies)
	if !ok {
		author = domain.UnknownAuthor
	}
	fields.Author = author
	fields.Links = p.links(node)

	return fields, nil
}

func (p *TimelineProfile) statusReference(node *goquery.Selection) (domain.Reference, bool) {
	var ref domain.Reference
	node.Find(p.sel.StatusLink).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := p.sel.StatusPattern.FindStringSubmatch(href); len(m) > 1 && m[1] != "" {
			ref = domain.Reference{Kind: domain.RefStatus, Value: m[1]}
			return false
		}
		return true
	})
	return ref, ref.Value != ""
}

func (p *TimelineProfile) attributeReference(node *goquery.Selection) (domain.Reference, bool) {
	for _, name := range p.sel.IDAttributes {
		v, ok := node.Attr(name)
		v = strings.TrimSpace(v)
		if !ok || v == "" || p.genericIDValue(v) {
			continue
		}
		return domain.Reference{Kind: domain.RefAttribute, Value: v}, true
	}
	return domain.Reference{}, false
}

func (p *TimelineProfile) genericIDValue(v string) bool {
	for _, g := range p.sel.GenericIDValues {
		if strings.EqualFold(v, g) {
			return true
		}
	}
	return false
}

func (p *TimelineProfile) compositeReference(node *goquery.Selection) (domain.Reference, bool) {
	datetime, _ := node.Find(p.sel.Time).First().Attr("datetime")
	lead := truncateRunes(strings.TrimSpace(node.Find(p.sel.Content).First().Text()), compositeLeadLen)
	if datetime == "" || lead == "" {
		return domain.Reference{}, false
	}
	compact := truncateRunes(whitespaceRuns.ReplaceAllString(lead, "_"), compositeTextLen)
	return domain.Reference{Kind: domain.RefComposite, Value: datetime + "_" + compact}, true
}

func (p *TimelineProfile) selectorText(selector string) func(*goquery.Selection) (string, bool) {
	return func(node *goquery.Selection) (string, bool) {
		if selector == "" {
			return "", false
		}
		el := node.Find(selector).First()
		if el.Length() == 0 {
			return "", false
		}
		text := Sanitize(ExtractText(el))
		return text, text != ""
	}
}

// longestBlock picks the longest visible block that is not post metadata chrome.
func (p *TimelineProfile) longestBlock(node *goquery.Selection) (string, bool) {
	var best string
	bestLen := 0
	node.Find(p.sel.Blocks).Each(func(_ int, block *goquery.Selection) {
		if block.Find(p.sel.Time).Length() > 0 || block.Find(p.sel.StatusLink).Length() > 0 {
			return
		}
		text := Sanitize(ExtractText(block))
		n := utf8.RuneCountInString(text)
		if n > p.sel.MinBlockLen && n > bestLen {
			best, bestLen = text, n
		}
	})
	return best, best != ""
}

func fullText(node *goquery.Selection) (string, bool) {
	text := Sanitize(ExtractText(node))
	return text, text != ""
}

func (p *TimelineProfile) authorName(node *goquery.Selection) (string, bool) {
	text := Sanitize(node.Find(p.sel.AuthorName).First().Text())
	return text, text != ""
}

func (p *TimelineProfile) authorNearTime(node *goquery.Selection) (string, bool) {
	t := node.Find(p.sel.Time).First()
	if t.Length() == 0 {
		return "", false
	}
	container := t.ParentsUntilSelection(node).Filter("div").First()
	if container.Length() == 0 {
		return "", false
	}
	text := Sanitize(container.Find(p.sel.AuthorLink).First().Text())
	return text, text != ""
}

func (p *TimelineProfile) authorProfileLink(node *goquery.Selection) (string, bool) {
	var author string
	node.Find(p.sel.ProfileLinks).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := Sanitize(a.Text())
		if text != "" && strings.Contains(text, "@") {
			author = text
			return false
		}
		return true
	})
	return author, author != ""
}

func (p *TimelineProfile) timestamp(node *goquery.Selection, now time.Time) (int64, bool) {
	datetime, _ := node.Find(p.sel.Time).First().Attr("datetime")
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(datetime))
	if err != nil {
		return now.UnixMilli(), false
	}
	return parsed.UnixMilli(), true
}

// links collects outbound URLs, skipping profile links and status permalinks.
func (p *TimelineProfile) links(node *goquery.Selection) []string {
	var out []string
	seen := map[string]struct{}{}
	node.Find(p.sel.Anchors).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || p.sel.ProfilePath.MatchString(href) || strings.Contains(href, "/status/") {
			return
		}

		var link string
		switch {
		case (p.sel.ShortLink != "" && strings.Contains(href, p.sel.ShortLink)) || strings.HasPrefix(href, "http"):
			link = href
		case strings.HasPrefix(href, "/"):
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			link = p.baseURL.ResolveReference(ref).String()
		default:
			return
		}

		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	})
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
