package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lynks-network/lynks/internal/app/settlement"
	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Settlement API ─────────────────────────────────────────────────────────
//
// POST   /api/me/register                 create the caller's account
// GET    /api/me                          profile and balance
// PUT    /api/me/handle                   set the display handle
// GET    /api/me/pending-count            submissions awaiting my review
// GET    /api/me/ledger                   credit history
// GET    /api/feed                        posts I can still submit to
// POST   /api/posts                       create a post (charges the fee)
// DELETE /api/posts/{id}                  delete a post, settling pending work
// POST   /api/proofs                      upload proof bytes
// POST   /api/submissions                 submit a proof against a post
// GET    /api/submissions/{sent,received} activity
// GET    /api/submissions/{id}[/proof]    one submission, its proof
// POST   /api/submissions/{id}/review     owner approves or rejects
// POST   /api/submissions/{id}/dispute    submitter appeals a rejection
// GET    /api/admin/disputes              open disputes
// POST   /api/admin/disputes/{id}/resolve admin ruling

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v >= 0 {
		return v
	}
	return def
}

// ─── Account ────────────────────────────────────────────────────────────────

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	caller := actorFrom(r)
	actor, err := s.engine.RegisterActor(r.Context(), caller.ID, caller.Role, req.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, actor)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, err := s.engine.Actor(r.Context(), actorFrom(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func (s *Server) handleSetHandle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	actor, err := s.engine.SetHandle(r.Context(), actorFrom(r), req.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.PendingCount(r.Context(), actorFrom(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.LedgerEntries(r.Context(), actorFrom(r),
		r.URL.Query().Get("account"), queryInt(r, "limit", 0))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ─── Posts ──────────────────────────────────────────────────────────────────

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	posts, err := s.engine.Feed(r.Context(), actorFrom(r), queryInt(r, "skip", 0), queryInt(r, "take", 20))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req settlement.PostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	post, err := s.engine.CreatePost(r.Context(), actorFrom(r), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.DeletePost(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Submissions ────────────────────────────────────────────────────────────

// handleUploadProof stores the raw request body as a proof blob.
func (s *Server) handleUploadProof(w http.ResponseWriter, r *http.Request) {
	limit := s.engine.Policy().MaxProofBytes
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.ErrProofTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref, err := s.engine.UploadProof(r.Context(), actorFrom(r), data)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"proof_ref": ref})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostID   string `json:"post_id"`
		ProofRef string `json:"proof_ref"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := s.engine.Submit(r.Context(), actorFrom(r), req.PostID, req.ProofRef)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleSent(w http.ResponseWriter, r *http.Request) {
	subs, err := s.engine.Sent(r.Context(), actorFrom(r), queryInt(r, "limit", 0))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (s *Server) handleReceived(w http.ResponseWriter, r *http.Request) {
	subs, err := s.engine.Received(r.Context(), actorFrom(r), queryInt(r, "limit", 0))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.Submission(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	rc, err := s.engine.OpenProof(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Review(r.Context(), actorFrom(r), chi.URLParam(r, "id"), decision, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	sub, err := s.engine.Dispute(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func (s *Server) handleDisputeQueue(w http.ResponseWriter, r *http.Request) {
	subs, err := s.engine.DisputeQueue(r.Context(), actorFrom(r), queryInt(r, "limit", 0))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": subs})
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	decision, err := domain.ParseDisputeDecision(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.ResolveDispute(r.Context(), actorFrom(r), chi.URLParam(r, "id"), decision)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Treasury(r.Context(), actorFrom(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeEngineError(w, domain.ErrUnauthorized)
		return
	}
	spans := s.tracer.Spans(queryInt(r, "limit", 100))
	writeJSON(w, http.StatusOK, map[string]any{"spans": spans, "total": s.tracer.SpanCount()})
}
