// Package sentiment scores posts locally without calling an external service.
package sentiment

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jonreiter/govader"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

const (
	positiveThreshold = 0.20
	negativeThreshold = -0.20
	maxTopics         = 5

	Positive = "positive"
	Neutral  = "neutral"
	Negative = "negative"
)

var (
	urlPattern   = regexp.MustCompile(`https?://\S+|www\.\S+`)
	topicPattern = regexp.MustCompile(`[#$][\p{L}\p{N}_]+`)
)

// VADER scores posts locally with the VADER lexicon.
type VADER struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

var _ ports.SentimentAnalyzer = (*VADER)(nil)

// NewVADER loads the lexicon once.
func NewVADER() *VADER {
	return &VADER{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *VADER) Name() string { return "vader" }

// Score returns the compound score of one text and its label.
func (v *VADER) Score(text string) (float64, string) {
	compound := v.analyzer.PolarityScores(RemoveLinks(text)).Compound
	return compound, Label(compound)
}

// Label classifies a compound score.
func Label(compound float64) string {
	switch {
	case compound >= positiveThreshold:
		return Positive
	case compound <= negativeThreshold:
		return Negative
	default:
		return Neutral
	}
}

// RemoveLinks drops URLs so they do not skew the lexicon.
func RemoveLinks(text string) string {
	return strings.Join(strings.Fields(urlPattern.ReplaceAllString(text, "")), " ")
}

// Analyze labels every post, reports the label shares and the label of the mean compound.
func (v *VADER) Analyze(_ context.Context, posts []domain.Post, contextLabel string) (domain.SentimentReport, error) {
	if len(posts) == 0 {
		return domain.SentimentReport{}, fmt.Errorf("no posts to analyze")
	}

	counts := map[string]int{}
	sum := 0.0
	for _, p := range posts {
		compound, label := v.Score(p.Text)
		counts[label]++
		sum += compound
	}
	mean := sum / float64(len(posts))

	pos := share(counts[Positive], len(posts))
	neg := share(counts[Negative], len(posts))
	return domain.SentimentReport{
		Sentiment: Label(mean),
		Breakdown: domain.SentimentBreakdown{Positive: pos, Neutral: 100 - pos - neg, Negative: neg},
		Insights: fmt.Sprintf("%d posts about %s: %d positive, %d neutral, %d negative (mean compound %.2f).",
			len(posts), contextLabel, counts[Positive], counts[Neutral], counts[Negative], mean),
		Topics:   Topics(posts, maxTopics),
		Provider: v.Name(),
	}, nil
}

func share(n, total int) int {
	return (n*100 + total/2) / total
}

// Topics returns the most frequent hashtags and cashtags, most frequent first.
func Topics(posts []domain.Post, limit int) []string {
	freq := map[string]int{}
	var order []string
	for _, p := range posts {
		for _, tag := range topicPattern.FindAllString(p.Text, -1) {
			tag = strings.ToLower(tag)
			if freq[tag] == 0 {
				order = append(order, tag)
			}
			freq[tag]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}
