package ml

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"TimelineWatch/internal/config"
	"TimelineWatch/internal/domain"
)

func TestClientAnalyze(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" || r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Context != "eth" || len(req.Posts) != 2 {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"sentiment":"NEUTRAL","breakdown":{"positive":30,"neutral":40,"negative":30},"topics":["merge"]}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.MLConfig{InferenceURL: srv.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	posts := []domain.Post{{ID: "a", Text: "gm"}, {ID: "b", Text: "gn"}}
	report, err := client.Analyze(context.Background(), posts, "eth")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if report.Sentiment != "neutral" || report.Breakdown.Neutral != 40 || report.Provider != "ml" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestClientAnalyzeErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := NewClient(config.MLConfig{InferenceURL: srv.URL})
	if _, err := client.Analyze(context.Background(), []domain.Post{{Text: "x"}}, "btc"); err == nil {
		t.Fatalf("expected error on 503")
	}

	_, err := NewClient(config.MLConfig{})
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
