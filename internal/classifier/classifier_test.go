package classifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/valmeida/chatvault/internal/classifier"
)

func TestClassifyOriginJoinsTextsIntoOneBlob(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode([]classifier.Prediction{
			{Label: classifier.LabelHumanWritten, Score: 0.93},
		})
	}))
	defer srv.Close()

	client := classifier.NewClient(srv.URL, time.Second, nil)

	predictions, err := client.ClassifyOrigin(context.Background(), []string{"line one", "line two"})
	if err != nil {
		t.Fatalf("ClassifyOrigin() error = %v", err)
	}

	if gotBody["text"] != "line one\nline two" {
		t.Errorf("request text = %q, want %q", gotBody["text"], "line one\nline two")
	}
	if len(predictions) != 1 || predictions[0].Label != classifier.LabelHumanWritten {
		t.Errorf("predictions = %+v, want one Human-Written", predictions)
	}
	if predictions[0].Score != 0.93 {
		t.Errorf("score = %v, want 0.93", predictions[0].Score)
	}
}

func TestClassifyOriginEmptyListStillCallsUpstream(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode([]classifier.Prediction{})
	}))
	defer srv.Close()

	client := classifier.NewClient(srv.URL, time.Second, nil)

	if _, err := client.ClassifyOrigin(context.Background(), nil); err != nil {
		t.Fatalf("ClassifyOrigin() error = %v", err)
	}
	if !called {
		t.Error("upstream was not called for an empty text list")
	}
	if text, ok := gotBody["text"]; !ok || text != "" {
		t.Errorf("request text = %q (present=%v), want empty string", text, ok)
	}
}

func TestClassifyOriginUpstreamErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := classifier.NewClient(srv.URL, time.Second, nil)

			_, err := client.ClassifyOrigin(context.Background(), []string{"x"})
			if !errors.Is(err, classifier.ErrUpstream) {
				t.Errorf("ClassifyOrigin() error = %v, want ErrUpstream", err)
			}
		})
	}
}

func TestClassifyOriginUnreachableUpstream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := classifier.NewClient(srv.URL, time.Second, nil)

	_, err := client.ClassifyOrigin(context.Background(), []string{"x"})
	if !errors.Is(err, classifier.ErrUpstream) {
		t.Errorf("ClassifyOrigin() error = %v, want ErrUpstream", err)
	}
}
