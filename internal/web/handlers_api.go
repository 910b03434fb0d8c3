package web

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/light"
)

func (s *Server) handleAPIListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.lights.Entries()
	if err != nil {
		s.logger.Error("list entries", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAPIGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.lights.Entry(r.PathValue("id"))
	if err != nil {
		s.writeLightError(w, "get entry", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleAPICreateEntry(w http.ResponseWriter, r *http.Request) {
	var cfg light.Config
	if !s.decodeBody(w, r, &cfg, false) {
		return
	}

	entry, err := s.lights.CreateEntry(cfg)
	if err != nil && entry == nil {
		s.writeLightError(w, "create entry", err)
		return
	}
	if err != nil {
		s.logger.Warn("entry created but setup failed", "entry", entry.ID, "err", err)
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleAPIUpdateOptions(w http.ResponseWriter, r *http.Request) {
	var opts light.Options
	if !s.decodeBody(w, r, &opts, false) {
		return
	}

	entry, err := s.lights.UpdateOptions(r.PathValue("id"), opts)
	if err != nil && entry == nil {
		s.writeLightError(w, "update options", err)
		return
	}
	if err != nil {
		s.logger.Warn("options updated but reload failed", "entry", entry.ID, "err", err)
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleAPIDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.lights.RemoveEntry(r.PathValue("id")); err != nil {
		s.writeLightError(w, "delete entry", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIListLights(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.lights.Entities())
}

func (s *Server) handleAPIGetLight(w http.ResponseWriter, r *http.Request) {
	info, err := s.lights.Entity(r.PathValue("id"))
	if err != nil {
		s.writeLightError(w, "get light", err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAPITurnOn(w http.ResponseWriter, r *http.Request) {
	var p light.TurnOnParams
	if !s.decodeBody(w, r, &p, true) {
		return
	}
	st, err := s.lights.TurnOn(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeLightError(w, "turn on", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAPITurnOff(w http.ResponseWriter, r *http.Request) {
	st, err := s.lights.TurnOff(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLightError(w, "turn off", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAPIToggle(w http.ResponseWriter, r *http.Request) {
	st, err := s.lights.Toggle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLightError(w, "toggle", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// frameView is the decoded form of a command frame.
type frameView struct {
	Frame    string `json:"frame"`
	Address  string `json:"address"`
	Command  string `json:"command"`
	Class    string `json:"class"`
	Sub      string `json:"sub"`
	Payload  string `json:"payload"`
	Checksum string `json:"checksum"`
}

func (s *Server) handleAPIDecodeFrame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hex string `json:"hex"`
	}
	if !s.decodeBody(w, r, &req, false) {
		return
	}

	raw, err := hex.DecodeString(strings.Join(strings.Fields(req.Hex), ""))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hex"})
		return
	}
	// A full transmission unit carries the frame twice.
	if len(raw) == 2*iluminize.FrameLen {
		if !bytes.Equal(raw[:iluminize.FrameLen], raw[iluminize.FrameLen:]) {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "frame copies differ"})
			return
		}
		raw = raw[:iluminize.FrameLen]
	}
	f, err := iluminize.ParseFrame(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	command := "unknown"
	switch f.Class() {
	case iluminize.ClassRGB:
		command = "rgb"
	case iluminize.ClassWhite:
		command = "white"
	}
	payload := f.Payload()
	s.writeJSON(w, http.StatusOK, frameView{
		Frame:    f.String(),
		Address:  f.Address().String(),
		Command:  command,
		Class:    fmt.Sprintf("%02X", f.Class()),
		Sub:      fmt.Sprintf("%02X", f.Sub()),
		Payload:  fmt.Sprintf("%X", payload[:]),
		Checksum: fmt.Sprintf("%02X", iluminize.Checksum(f[:])),
	})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// decodeBody reads a JSON request body into v. An empty body is accepted
// when optional is set.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	return false
}

// writeLightError maps light manager errors to HTTP responses.
func (s *Server) writeLightError(w http.ResponseWriter, op string, err error) {
	var cfgErr *light.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": cfgErr.Fields})
	case errors.Is(err, light.ErrAlreadyConfigured):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "already_configured"})
	case errors.Is(err, light.ErrEntityNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "light not found"})
	case errors.Is(err, light.ErrEntryNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
	default:
		s.logger.Error(op, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
