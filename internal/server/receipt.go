package server

import (
	"net/http"
	"strconv"
	"strings"

	"receiptgen/internal/bulk"
	"receiptgen/internal/content"
	"receiptgen/internal/logging"
	"receiptgen/internal/receipt"
	"receiptgen/internal/render"
	"receiptgen/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ok(map[string]any{"settings": s.Settings()}))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	st := s.Settings()
	if err := decodeJSON(r, &st, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.settingsMu.Lock()
	s.settings = st
	s.settingsMu.Unlock()
	if s.saver != nil {
		s.saver.Schedule(st)
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{"settings": st}))
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	st := settings.Defaults()
	if s.saver != nil {
		var err error
		if st, err = s.saver.Reset(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to reset settings")
			return
		}
	}
	s.settingsMu.Lock()
	s.settings = st
	s.settingsMu.Unlock()
	writeJSON(w, http.StatusOK, ok(map[string]any{"settings": st, "record": s.baseRecord()}))
}

// readRecord decodes the request's record over the current base record.
func (s *Server) readRecord(w http.ResponseWriter, r *http.Request) (receipt.Record, bool) {
	rec := s.baseRecord()
	if err := decodeJSON(r, &rec, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return rec, false
	}
	return rec, true
}

func writeRecord(w http.ResponseWriter, rec receipt.Record) {
	writeJSON(w, http.StatusOK, ok(map[string]any{"record": rec}))
}

func (s *Server) handleStudent(w http.ResponseWriter, r *http.Request) {
	rec, good := s.readRecord(w, r)
	if !good {
		return
	}
	s.gen.Student().Apply(&rec)
	writeRecord(w, rec)
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	rec, good := s.readRecord(w, r)
	if !good {
		return
	}
	s.gen.Payment().Apply(&rec)
	writeRecord(w, rec)
}

func signatureDetail(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("detail")); err == nil {
		return n
	}
	return bulk.SignatureDetail
}

func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request) {
	rec, good := s.readRecord(w, r)
	if !good {
		return
	}
	name := strings.TrimSpace(rec.AccountantName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "please enter a name for the signature")
		return
	}
	sig := s.content.SignatureImage(r.Context(), name, signatureDetail(r))
	if sig == "" {
		writeError(w, http.StatusBadGateway, "failed to generate signature")
		return
	}
	rec.SignatureURL = sig
	writeRecord(w, rec)
}

// handleGenerateAll fills student and payment fields, picks a signatory and
// signs. The current signatory is kept unless it is empty or the default.
func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	rec, good := s.readRecord(w, r)
	if !good {
		return
	}
	s.gen.Student().Apply(&rec)
	s.gen.Payment().Apply(&rec)

	name := strings.TrimSpace(rec.AccountantName)
	if name == "" || name == receipt.DefaultAccountantName {
		name = strings.TrimSpace(s.content.PrincipalName(r.Context()))
		if name == "" {
			name = receipt.DefaultAccountantName
		}
	}
	rec.AccountantName = name
	rec.SignatureURL = s.content.SignatureImage(r.Context(), name, bulk.SignatureDetail)
	writeRecord(w, rec)
}

func (s *Server) page(rec receipt.Record) ([]byte, error) {
	if s.tmpl != nil {
		return s.tmpl.Page(rec)
	}
	return render.Page(rec)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rec, good := s.readRecord(w, r)
	if !good {
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := s.page(rec)
	if err != nil {
		apiLog().Error("preview failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to render preview")
		return
	}
	logging.RenderDebug("preview rendered for %s", rec.ReceiptNumber)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(doc)
}

// handleExport rasterizes one record. Errors go straight to the caller.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rec, good := s.readRecord(w, r)
	if !good {
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.raster == nil {
		writeError(w, http.StatusServiceUnavailable, "rendering is not available")
		return
	}

	png, err := s.raster.Rasterize(r.Context(), rec)
	if err != nil {
		apiLog().Error("export of %s failed: %v", rec.ReceiptNumber, err)
		writeError(w, http.StatusInternalServerError, "failed to render receipt: "+err.Error())
		return
	}

	filename := receipt.SingleFilename(rec)
	if r.URL.Query().Get("format") == "pdf" {
		doc, err := render.PDF(png, rec.ReceiptNumber)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build pdf: "+err.Error())
			return
		}
		attachment(w, "application/pdf", strings.TrimSuffix(filename, ".png")+".pdf")
		_, _ = w.Write(doc)
		return
	}
	attachment(w, "image/png", filename)
	_, _ = w.Write(png)
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !content.ValidCount(in.Count) {
		writeError(w, http.StatusBadRequest, "count must be between 1 and "+strconv.Itoa(content.MaxNamePairs))
		return
	}
	pairs := s.content.NamePairs(r.Context(), in.Count)
	if len(pairs) == 0 {
		writeError(w, http.StatusBadGateway, "failed to generate names")
		return
	}
	if s.pipeline != nil {
		s.pipeline.RememberPairs(pairs)
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{
		"pairs": pairs,
		"names": strings.Join(receipt.StudentNames(pairs), "\n"),
	}))
}
