package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"receiptgen/internal/bulk"
	"receiptgen/internal/receipt"
)

// Response headers describing a bulk archive.
const (
	HeaderRendered  = "X-Receipts-Rendered"
	HeaderSkipped   = "X-Receipts-Skipped"
	HeaderDropped   = "X-Receipts-Dropped"
	HeaderSignatory = "X-Receipts-Signatory"
)

type bulkRequest struct {
	Names  string                  `json:"names"`
	School *receipt.SchoolIdentity `json:"school,omitempty"`
}

// escapeNames joins query-escaped names so non-ASCII names survive a header.
func escapeNames(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = url.QueryEscape(n)
	}
	return strings.Join(out, ",")
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "bulk export is not available")
		return
	}
	var in bulkRequest
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	school := s.Settings().School()
	if in.School != nil {
		school = *in.School
	}

	res, err := s.pipeline.Run(r.Context(), bulk.Request{Names: in.Names, School: school})
	switch {
	case errors.Is(err, bulk.ErrJobInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, bulk.ErrNoNames), errors.Is(err, bulk.ErrTooManyNames):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		apiLog().Error("bulk export failed: %v", err)
		writeError(w, http.StatusInternalServerError, "bulk export failed: "+err.Error())
		return
	}

	h := w.Header()
	h.Set(HeaderRendered, strconv.Itoa(res.Rendered))
	h.Set(HeaderSignatory, url.QueryEscape(res.Signatory))
	if len(res.Skipped) > 0 {
		h.Set(HeaderSkipped, escapeNames(res.Skipped))
	}
	if len(res.Dropped) > 0 {
		h.Set(HeaderDropped, escapeNames(res.Dropped))
	}
	attachment(w, "application/zip", res.ArchiveName)
	h.Set("Content-Length", strconv.Itoa(len(res.Archive)))
	_, _ = w.Write(res.Archive)
}

type progressBody struct {
	Success bool `json:"success"`
	Running bool `json:"running"`
	bulk.Progress
}

// handleBulkProgress returns the current snapshot, or streams updates as
// server-sent events when the client asks for text/event-stream.
func (s *Server) handleBulkProgress(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "bulk export is not available")
		return
	}
	tracker := s.pipeline.Tracker()
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		p, running := tracker.Snapshot()
		writeJSON(w, http.StatusOK, progressBody{Success: true, Running: running, Progress: p})
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusNotAcceptable, "streaming is not supported")
		return
	}
	updates, cancel := tracker.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(p bulk.Progress, running bool) bool {
		data, err := json.Marshal(progressBody{Success: true, Running: running, Progress: p})
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	p, running := tracker.Snapshot()
	if !send(p, running) {
		return
	}
	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case p, open := <-updates:
			if !open {
				return
			}
			if !send(p, p.Stage != bulk.StageIdle) {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
