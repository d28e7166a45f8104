package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/cancel"
	"github.com/JakeFAU/area-listing-scraper/internal/progress"
	"github.com/JakeFAU/area-listing-scraper/internal/report"
	"github.com/JakeFAU/area-listing-scraper/internal/storage"
)

// streamBuffer lets the job run a few events ahead of a slow client.
const streamBuffer = 16

type areaDTO struct {
	ID         int64  `json:"id"`
	Prefecture string `json:"prefecture"`
	Name       string `json:"name"`
}

// listAreas handles GET /api/areas.
func (s *Server) listAreas(w http.ResponseWriter, r *http.Request) {
	if s.deps.Areas == nil {
		writeError(w, http.StatusServiceUnavailable, "area store unavailable")
		return
	}
	areas, err := s.deps.Areas.ListAreas(r.Context())
	if err != nil {
		s.logger.Error("list areas failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list areas")
		return
	}
	out := make([]areaDTO, 0, len(areas))
	for _, a := range areas {
		out = append(out, areaDTO{ID: a.ID, Prefecture: a.Prefecture, Name: a.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": out})
}

// scrape handles GET /scrape?area_id=. It runs the job on the request's
// context and writes each event as an SSE frame. A departing client ends the
// context, which the job observes as cancellation.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	areaID := r.URL.Query().Get("area_id")
	stream := progress.NewStream(ctx, streamBuffer)
	emitters := []progress.Emitter{stream}
	if s.deps.Observer != nil {
		emitters = append(emitters, s.deps.Observer)
	}
	go func() {
		defer stream.Close()
		s.deps.Runner.Run(ctx, areaID, progress.Tee(emitters...))
	}()

	broken := false
	for evt := range stream.Events() {
		if broken {
			continue
		}
		if err := writeSSE(w, evt); err != nil {
			s.logger.Debug("event stream write failed", zap.String("job_token", evt.JobToken), zap.Error(err))
			broken = true
			continue
		}
		flusher.Flush()
	}
}

// writeSSE renders one frame: "event: <type>\ndata: <payload>\n\n". Multi-line
// payloads get one data line per line.
func writeSSE(w io.Writer, evt progress.Event) error {
	data, err := evt.Data()
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", evt.Type)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// cancelJob handles POST /cancel/{job_id}.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	s.requestCancel(r.Context(), w, chi.URLParam(r, "job_id"))
}

// cancelJobJSON handles POST /scrape/cancel with {"job_id": "..."}.
func (s *Server) cancelJobJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.requestCancel(r.Context(), w, req.JobID)
}

func (s *Server) requestCancel(ctx context.Context, w http.ResponseWriter, token string) {
	if !cancel.ValidToken(token) {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	if err := s.deps.Cancel.Request(ctx, token); err != nil {
		s.logger.Error("cancel request failed", zap.String("job_token", token), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record cancellation")
		return
	}
	s.logger.Info("cancel requested", zap.String("job_token", token))
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": token, "status": "cancel_requested"})
}

// download handles GET /download/{file}.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `\/`) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	rc, err := s.deps.Reports.GetObject(r.Context(), name)
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.logger.Error("open report failed", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("report download interrupted", zap.String("file", name), zap.Error(err))
	}
}
