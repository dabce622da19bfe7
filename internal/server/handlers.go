package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) getIssuer(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, contentTypeJSONLD, h.profile)
}

func (h *Handler) getKey(w http.ResponseWriter, r *http.Request) {
	keyID := strings.ToLower(mux.Vars(r)["keyId"])

	doc, ok := h.keyDocs[keyID]
	if !ok {
		h.writeError(w, badgeerr.Newf(badgeerr.KindKeyNotFound, "no key with id %q", keyID))
		return
	}
	h.writeJSON(w, http.StatusOK, contentTypeJSONLD, doc)
}

func (h *Handler) postVerify(w http.ResponseWriter, r *http.Request) {
	artifact, err := readArtifact(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	report := h.pipeline.Verify(r.Context(), artifact)
	h.writeJSON(w, http.StatusOK, contentTypeJSON, report)
}

// readArtifact returns the request body, or the bearer token when the body
// is empty.
func readArtifact(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxArtifactSize+1))
	if err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindEncoding, "failed to read request body", err)
	}
	if len(body) > maxArtifactSize {
		return nil, badgeerr.Newf(badgeerr.KindEncoding, "badge artifact exceeds %d bytes", maxArtifactSize)
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		return body, nil
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return []byte(strings.TrimPrefix(auth, "Bearer ")), nil
	}
	return nil, badgeerr.New(badgeerr.KindEncoding, "request carries no badge artifact")
}

func statusFor(err error) int {
	switch badgeerr.KindOf(err) {
	case badgeerr.KindKeyNotFound:
		return http.StatusNotFound
	case badgeerr.KindEncoding, badgeerr.KindKeyValidation, badgeerr.KindSchemaValidation, badgeerr.KindProofVerification:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"}

	var be *badgeerr.Error
	if errors.As(err, &be) {
		resp = errorResponse{Code: string(be.Kind), Message: be.Message}
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, contentTypeJSON, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
