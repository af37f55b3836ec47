package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/valmeida/chatvault/internal/database"
	"github.com/valmeida/chatvault/internal/ingest"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *handlers) ingestMessage(w http.ResponseWriter, r *http.Request) {
	var env ingest.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid JSON body: %v", ingest.ErrValidation, err))
		return
	}

	if err := h.deps.Ingest.Ingest(r.Context(), &env); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, successResponse{Success: true})
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.deps.Store.ListMessages(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, messages)
}

// messageDetail is the fan-out read response: the message plus all seven
// child-entity sets, fetched concurrently. A failed slot carries an entry
// in Errors while the other slots still return data.
type messageDetail struct {
	Message           *database.MessageWithAuthor `json:"message"`
	Attachments       []database.Attachment       `json:"attachments"`
	Embeds            []database.Embed            `json:"embeds"`
	Components        []database.Component        `json:"components"`
	Mentions          []database.Mention          `json:"mentions"`
	Member            *database.Member            `json:"member"`
	MessageReference  *database.MessageReference  `json:"message_reference"`
	ReferencedMessage *database.ReferencedMessage `json:"referenced_message"`
	Errors            map[string]string           `json:"errors,omitempty"`
}

func (h *handlers) getMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	message, err := h.deps.Store.GetMessage(ctx, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	detail := messageDetail{Message: message}

	// Seven independent fetches joined into a fixed-shape record; each
	// slot fails on its own without cancelling the siblings.
	var (
		attachmentsErr, embedsErr, componentsErr, mentionsErr error
		memberErr, referenceErr, referencedErr                error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detail.Attachments, attachmentsErr = h.deps.Store.ListAttachments(gCtx, id)
		return nil
	})
	g.Go(func() error {
		detail.Embeds, embedsErr = h.deps.Store.ListEmbeds(gCtx, id)
		return nil
	})
	g.Go(func() error {
		detail.Components, componentsErr = h.deps.Store.ListComponents(gCtx, id)
		return nil
	})
	g.Go(func() error {
		detail.Mentions, mentionsErr = h.deps.Store.ListMentions(gCtx, id)
		return nil
	})
	g.Go(func() error {
		detail.Member, memberErr = h.deps.Store.GetMember(gCtx, id)
		return nil
	})
	g.Go(func() error {
		detail.MessageReference, referenceErr = h.deps.Store.GetMessageReference(gCtx, id)
		return nil
	})
	g.Go(func() error {
		detail.ReferencedMessage, referencedErr = h.deps.Store.GetReferencedMessage(gCtx, id)
		return nil
	})
	_ = g.Wait()

	slotErrors := map[string]error{
		"attachments":        attachmentsErr,
		"embeds":             embedsErr,
		"components":         componentsErr,
		"mentions":           mentionsErr,
		"member":             memberErr,
		"message_reference":  referenceErr,
		"referenced_message": referencedErr,
	}
	for slot, slotErr := range slotErrors {
		if slotErr != nil {
			h.logger.Warn("Child-entity fetch failed", "message_id", id, "slot", slot, "error", slotErr)
			if detail.Errors == nil {
				detail.Errors = make(map[string]string)
			}
			detail.Errors[slot] = slotErr.Error()
		}
	}

	writeJSON(w, h.logger, http.StatusOK, detail)
}

func (h *handlers) listMessagesByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	messages, err := h.deps.Store.ListMessagesByAuthor(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, messages)
}

func (h *handlers) listAttachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := h.deps.Store.ListAttachments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, attachments)
}

func (h *handlers) listEmbeds(w http.ResponseWriter, r *http.Request) {
	embeds, err := h.deps.Store.ListEmbeds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, embeds)
}

func (h *handlers) listComponents(w http.ResponseWriter, r *http.Request) {
	components, err := h.deps.Store.ListComponents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, components)
}

func (h *handlers) listMentions(w http.ResponseWriter, r *http.Request) {
	mentions, err := h.deps.Store.ListMentions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, mentions)
}

func (h *handlers) getMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.deps.Store.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, member)
}

func (h *handlers) getMessageReference(w http.ResponseWriter, r *http.Request) {
	ref, err := h.deps.Store.GetMessageReference(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ref)
}

func (h *handlers) getReferencedMessage(w http.ResponseWriter, r *http.Request) {
	ref, err := h.deps.Store.GetReferencedMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ref)
}

func (h *handlers) getMessageContext(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.deps.Assembler.AssembleContext(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, bundle)
}

func (h *handlers) renderTranscript(w http.ResponseWriter, r *http.Request) {
	lines := h.deps.Assembler.RenderTranscript(r.Context(), chi.URLParam(r, "messageID"))
	writeJSON(w, h.logger, http.StatusOK, lines)
}

func (h *handlers) listAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.deps.Store.ListAuthors(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, authors)
}

func (h *handlers) getAuthor(w http.ResponseWriter, r *http.Request) {
	author, err := h.deps.Store.GetAuthor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, author)
}

type classifyOriginRequest struct {
	Text []string `json:"text"`
}

func (h *handlers) classifyOrigin(w http.ResponseWriter, r *http.Request) {
	var req classifyOriginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid JSON body: %v", ingest.ErrValidation, err))
		return
	}

	predictions, err := h.deps.Classifier.ClassifyOrigin(r.Context(), req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, predictions)
}

type classifyToneRequest struct {
	MessageID string `json:"message_id"`
}

type classifyToneResponse struct {
	Tone string `json:"tone"`
}

// classifyTone degrades to an empty tone on every failure: a missing
// message, an unconfigured model client, or an upstream error all answer
// "no opinion" rather than an error status.
func (h *handlers) classifyTone(w http.ResponseWriter, r *http.Request) {
	var req classifyToneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid JSON body: %v", ingest.ErrValidation, err))
		return
	}

	tone := ""
	if h.deps.Tone != nil {
		transcript := h.deps.Assembler.RenderTranscript(r.Context(), req.MessageID)
		classified, err := h.deps.Tone.ClassifyTone(r.Context(), transcript)
		if err != nil {
			h.logger.Warn("Tone classification degraded to empty", "message_id", req.MessageID, "error", err)
		} else {
			tone = classified
		}
	}

	writeJSON(w, h.logger, http.StatusOK, classifyToneResponse{Tone: tone})
}

func (h *handlers) generateUserInsights(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Insights.Generate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}

func (h *handlers) readUserInsights(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	facts, err := h.deps.Insights.Read(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, facts)
}
