package server_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valmeida/chatvault/internal/chatlog"
	"github.com/valmeida/chatvault/internal/classifier"
	"github.com/valmeida/chatvault/internal/config"
	"github.com/valmeida/chatvault/internal/database"
	"github.com/valmeida/chatvault/internal/ingest"
	"github.com/valmeida/chatvault/internal/insights"
	"github.com/valmeida/chatvault/internal/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore backs the full route surface with in-memory state.
type fakeStore struct {
	database.Store

	messages    map[string]*database.MessageWithAuthor
	authors     map[string]*database.Author
	attachments map[string][]database.Attachment
	insights    map[string][]database.UserInsight

	attachmentsErr error
	ingested       []*database.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:    make(map[string]*database.MessageWithAuthor),
		authors:     make(map[string]*database.Author),
		attachments: make(map[string][]database.Attachment),
		insights:    make(map[string][]database.UserInsight),
	}
}

func (f *fakeStore) UpsertAuthor(_ context.Context, a *database.Author) error {
	f.authors[a.ID] = a
	return nil
}

func (f *fakeStore) UpsertMessage(_ context.Context, m *database.Message) error {
	f.ingested = append(f.ingested, m)
	f.messages[m.ID] = &database.MessageWithAuthor{Message: *m}
	return nil
}

func (f *fakeStore) InsertAttachment(_ context.Context, a *database.Attachment) error {
	f.attachments[a.MessageID] = append(f.attachments[a.MessageID], *a)
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, id string) (*database.MessageWithAuthor, error) {
	if m, ok := f.messages[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("message %s: %w", id, database.ErrNotFound)
}

func (f *fakeStore) ListMessages(_ context.Context) ([]database.MessageWithAuthor, error) {
	out := []database.MessageWithAuthor{}
	for _, m := range f.messages {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeStore) ListMessagesByAuthor(_ context.Context, authorID string) ([]database.MessageWithAuthor, error) {
	out := []database.MessageWithAuthor{}
	for _, m := range f.messages {
		if m.AuthorID.String == authorID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListChannelContext(_ context.Context, channelID, excludeID string, _ int) ([]database.MessageWithAuthor, error) {
	out := []database.MessageWithAuthor{}
	for _, m := range f.messages {
		if m.ChannelID == channelID && m.ID != excludeID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAuthor(_ context.Context, id string) (*database.Author, error) {
	if a, ok := f.authors[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("author %s: %w", id, database.ErrNotFound)
}

func (f *fakeStore) ListAuthors(_ context.Context) ([]database.Author, error) {
	out := []database.Author{}
	for _, a := range f.authors {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeStore) ListAttachments(_ context.Context, messageID string) ([]database.Attachment, error) {
	if f.attachmentsErr != nil {
		return nil, f.attachmentsErr
	}
	return f.attachments[messageID], nil
}

func (f *fakeStore) ListEmbeds(context.Context, string) ([]database.Embed, error) {
	return []database.Embed{}, nil
}

func (f *fakeStore) ListComponents(context.Context, string) ([]database.Component, error) {
	return []database.Component{}, nil
}

func (f *fakeStore) ListMentions(context.Context, string) ([]database.Mention, error) {
	return []database.Mention{}, nil
}

func (f *fakeStore) GetMember(context.Context, string) (*database.Member, error) {
	return nil, nil
}

func (f *fakeStore) GetMessageReference(context.Context, string) (*database.MessageReference, error) {
	return nil, nil
}

func (f *fakeStore) GetReferencedMessage(context.Context, string) (*database.ReferencedMessage, error) {
	return nil, nil
}

func (f *fakeStore) ListWindowContexts(context.Context, string, time.Duration) ([]database.WindowContextRow, error) {
	return []database.WindowContextRow{}, nil
}

func (f *fakeStore) CountDistinctChannels(_ context.Context, userID string) (int, error) {
	channels := map[string]bool{}
	for _, m := range f.messages {
		if m.AuthorID.String == userID {
			channels[m.ChannelID] = true
		}
	}
	return len(channels), nil
}

func (f *fakeStore) InsertUserInsight(_ context.Context, insight *database.UserInsight) error {
	f.insights[insight.UserID] = append(f.insights[insight.UserID], *insight)
	return nil
}

func (f *fakeStore) ListUserInsights(_ context.Context, userID string) ([]database.UserInsight, error) {
	facts := f.insights[userID]
	if facts == nil {
		facts = []database.UserInsight{}
	}
	return facts, nil
}

func newTestHandler(t *testing.T, store *fakeStore, classifierURL string) http.Handler {
	t.Helper()

	if classifierURL == "" {
		classifierURL = "http://127.0.0.1:1/predict"
	}

	cfg := config.ServerConfig{
		ListenAddr:      ":0",
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: time.Second,
		CORSOrigins:     []string{"http://localhost:3000"},
	}
	deps := server.Deps{
		Logger:     testLogger(),
		Store:      store,
		Ingest:     ingest.NewService(store, nil),
		Assembler:  chatlog.NewAssembler(store, nil),
		Classifier: classifier.NewClient(classifierURL, time.Second, nil),
		Tone:       nil,
		Insights:   insights.NewAggregator(store, nil),
	}
	return server.NewServer(cfg, deps).Handler()
}

func seedMessage(store *fakeStore, id, channelID, authorID string) {
	m := &database.MessageWithAuthor{
		Message: database.Message{
			ID:               id,
			ChannelID:        channelID,
			Content:          sql.NullString{String: "hello", Valid: true},
			MessageTimestamp: database.NullTime{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), Valid: true},
		},
	}
	if authorID != "" {
		m.AuthorID = sql.NullString{String: authorID, Valid: true}
	}
	store.messages[id] = m
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIngestEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid envelope", body: `{"channel_id":"c1","message":{"id":"m1"}}`, wantStatus: http.StatusOK},
		{name: "malformed JSON", body: `{not json`, wantStatus: http.StatusBadRequest},
		{name: "missing message", body: `{"channel_id":"c1"}`, wantStatus: http.StatusBadRequest},
		{name: "missing message id", body: `{"message":{"content":"x"}}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newTestHandler(t, newFakeStore(), "")
			rec := doRequest(t, h, http.MethodPost, "/messages", tc.body)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}

			if tc.wantStatus == http.StatusOK {
				var resp map[string]bool
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("response not JSON: %v", err)
				}
				if !resp["success"] {
					t.Errorf("response = %s, want success true", rec.Body.String())
				}
			}
		})
	}
}

func TestGetMessageNotFound(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, newFakeStore(), "")
	rec := doRequest(t, h, http.MethodGet, "/messages/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("error body = %+v, want success=false with message", resp)
	}
}

func TestGetMessageFanOut(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedMessage(store, "m1", "c1", "u1")
	store.attachments["m1"] = []database.Attachment{{MessageID: "m1"}}

	h := newTestHandler(t, store, "")
	rec := doRequest(t, h, http.MethodGet, "/messages/m1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message     *json.RawMessage  `json:"message"`
		Attachments []json.RawMessage `json:"attachments"`
		Errors      map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp.Message == nil {
		t.Error("message slot missing from fan-out response")
	}
	if len(resp.Attachments) != 1 {
		t.Errorf("attachments = %d, want 1", len(resp.Attachments))
	}
	if len(resp.Errors) != 0 {
		t.Errorf("errors = %+v, want none", resp.Errors)
	}
}

func TestGetMessagePartialFanOutFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedMessage(store, "m1", "c1", "u1")
	store.attachmentsErr = errors.New("disk error")

	h := newTestHandler(t, store, "")
	rec := doRequest(t, h, http.MethodGet, "/messages/m1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite slot failure", rec.Code)
	}

	var resp struct {
		Errors map[string]string `json:"errors"`
		Embeds []json.RawMessage `json:"embeds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if _, ok := resp.Errors["attachments"]; !ok {
		t.Errorf("errors = %+v, want attachments slot marked", resp.Errors)
	}
	if resp.Embeds == nil {
		t.Error("embeds slot missing, healthy slots should still return data")
	}
}

func TestTranscriptEndpointUnknownMessage(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, newFakeStore(), "")
	rec := doRequest(t, h, http.MethodGet, "/messages/log/missing", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var lines []string
	if err := json.Unmarshal(rec.Body.Bytes(), &lines); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("lines = %v, want empty array", lines)
	}
}

func TestMessageContextEndpoint(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedMessage(store, "m1", "c1", "u1")
	seedMessage(store, "m2", "c1", "u2")

	h := newTestHandler(t, store, "")
	rec := doRequest(t, h, http.MethodGet, "/message-context/m1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var bundle struct {
		ChannelID string            `json:"channel_id"`
		Count     int               `json:"count"`
		Context   []json.RawMessage `json:"context_messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if bundle.ChannelID != "c1" || bundle.Count != 1 {
		t.Errorf("bundle = %+v, want channel c1 with one context message", bundle)
	}

	rec = doRequest(t, h, http.MethodGet, "/message-context/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestToneEndpointWithoutModelClient(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedMessage(store, "m1", "c1", "u1")

	h := newTestHandler(t, store, "")
	rec := doRequest(t, h, http.MethodPost, "/messages/tone", `{"message_id":"m1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if tone, ok := resp["tone"]; !ok || tone != "" {
		t.Errorf("response = %s, want empty tone", rec.Body.String())
	}
}

func TestClassifierEndpoint(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]classifier.Prediction{
			{Label: classifier.LabelMachineGenerated, Score: 0.88},
		})
	}))
	defer upstream.Close()

	h := newTestHandler(t, newFakeStore(), upstream.URL)
	rec := doRequest(t, h, http.MethodPost, "/messages/classifier", `{"text":["some content"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var predictions []classifier.Prediction
	if err := json.Unmarshal(rec.Body.Bytes(), &predictions); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(predictions) != 1 || predictions[0].Label != classifier.LabelMachineGenerated {
		t.Errorf("predictions = %+v, want one Machine-Generated", predictions)
	}
}

func TestClassifierEndpointUpstreamDown(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, newFakeStore(), "http://127.0.0.1:1/predict")
	rec := doRequest(t, h, http.MethodPost, "/messages/classifier", `{"text":["x"]}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestAuthorEndpoints(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.authors["u1"] = &database.Author{ID: "u1", Username: sql.NullString{String: "alice", Valid: true}}

	h := newTestHandler(t, store, "")

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := doRequest(t, h, method, "/authors", "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s /authors status = %d, want 200", method, rec.Code)
		}
		var authors []database.Author
		if err := json.Unmarshal(rec.Body.Bytes(), &authors); err != nil {
			t.Fatalf("response not JSON: %v", err)
		}
		if len(authors) != 1 {
			t.Errorf("%s /authors len = %d, want 1", method, len(authors))
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/authors/u1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /authors/u1 status = %d, want 200", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/authors/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /authors/missing status = %d, want 404", rec.Code)
	}
}

func TestUserInsightsEndpoints(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedMessage(store, "m1", "c1", "u1")

	h := newTestHandler(t, store, "")

	rec := doRequest(t, h, http.MethodPost, "/user_insights/generate/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST generate status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var report struct {
		UserID       string `json:"user_id"`
		MessageCount int    `json:"message_count"`
		ChannelCount int    `json:"channel_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if report.UserID != "u1" || report.MessageCount != 1 || report.ChannelCount != 1 {
		t.Errorf("report = %+v, want u1 with one message in one channel", report)
	}

	rec = doRequest(t, h, http.MethodGet, "/user_insights/generate/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET generate status = %d, want 200", rec.Code)
	}
	var facts []database.UserInsight
	if err := json.Unmarshal(rec.Body.Bytes(), &facts); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(facts) != 2 {
		t.Errorf("stored facts = %d, want 2 (message_count and channel_count)", len(facts))
	}
}

func TestListMessagesByUserEndpoint(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedMessage(store, "m1", "c1", "u1")
	seedMessage(store, "m2", "c1", "u2")

	h := newTestHandler(t, store, "")
	rec := doRequest(t, h, http.MethodGet, "/messages/user/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var messages []database.MessageWithAuthor
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(messages) != 1 || messages[0].ID != "m1" {
		t.Errorf("messages = %+v, want only m1", messages)
	}
}
