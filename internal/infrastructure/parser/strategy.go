package parser

import "github.com/PuerkitoBio/goquery"

// Strategy is one prioritized way of reading a value out of a candidate node.
type Strategy[T any] struct {
	Name    string
	Extract func(node *goquery.Selection) (T, bool)
}

// First evaluates strategies in priority order and returns the first successful value.
// The name of the winning strategy is returned alongside it.
func First[T any](node *goquery.Selection, strategies []Strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if s.Extract == nil {
			continue
		}
		if v, ok := s.Extract(node); ok {
			return v, s.Name, true
		}
	}
	var zero T
	return zero, "", false
}
