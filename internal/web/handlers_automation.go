package web

import (
	"errors"
	"net/http"

	"iluminize-go-home/internal/automation"
)

// scriptView is a script with its runtime status.
type scriptView struct {
	*automation.Script
	Running bool `json:"running"`
}

func (s *Server) viewScript(sc *automation.Script) scriptView {
	return scriptView{Script: sc, Running: s.autoEngine != nil && s.autoEngine.Running(sc.ID)}
}

func (s *Server) automationsAvailable(w http.ResponseWriter) bool {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "automations not available"})
		return false
	}
	return true
}

func (s *Server) writeScriptError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, automation.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "script not found"})
		return
	}
	s.logger.Error(op, "err", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func (s *Server) handleAPIListAutomations(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusOK, []scriptView{})
		return
	}
	scripts, err := s.scriptMgr.List()
	if err != nil {
		s.writeScriptError(w, "list scripts", err)
		return
	}
	views := make([]scriptView, len(scripts))
	for i, sc := range scripts {
		views[i] = s.viewScript(sc)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsAvailable(w) {
		return
	}
	script, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeScriptError(w, "get script", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.viewScript(script))
}

type saveAutomationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LuaCode     string `json:"lua_code"`
	Enabled     bool   `json:"enabled"`
}

func (s *Server) handleAPICreateAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsAvailable(w) {
		return
	}
	var req saveAutomationRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	saved, err := s.scriptMgr.Save(&automation.Script{
		Meta:    automation.ScriptMeta{Name: req.Name, Description: req.Description, Enabled: req.Enabled},
		LuaCode: req.LuaCode,
	})
	if err != nil {
		s.writeScriptError(w, "create script", err)
		return
	}
	s.reload(saved.ID)
	s.writeJSON(w, http.StatusCreated, s.viewScript(saved))
}

func (s *Server) handleAPIUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsAvailable(w) {
		return
	}
	existing, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeScriptError(w, "get script", err)
		return
	}
	var req saveAutomationRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}

	existing.Meta = automation.ScriptMeta{Name: req.Name, Description: req.Description, Enabled: req.Enabled}
	existing.LuaCode = req.LuaCode
	saved, err := s.scriptMgr.Save(existing)
	if err != nil {
		s.writeScriptError(w, "update script", err)
		return
	}
	s.reload(saved.ID)
	s.writeJSON(w, http.StatusOK, s.viewScript(saved))
}

func (s *Server) handleAPIDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsAvailable(w) {
		return
	}
	id := r.PathValue("id")
	if s.autoEngine != nil {
		s.autoEngine.StopScript(id)
	}
	if err := s.scriptMgr.Delete(id); err != nil {
		s.writeScriptError(w, "delete script", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIToggleAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsAvailable(w) {
		return
	}
	script, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeScriptError(w, "get script", err)
		return
	}
	script.Meta.Enabled = !script.Meta.Enabled
	saved, err := s.scriptMgr.Save(script)
	if err != nil {
		s.writeScriptError(w, "toggle script", err)
		return
	}
	s.reload(saved.ID)
	s.writeJSON(w, http.StatusOK, s.viewScript(saved))
}

// handleAPIRunAutomation runs a stored script once, or the lua_code of the
// request body when id is "_inline".
func (s *Server) handleAPIRunAutomation(w http.ResponseWriter, r *http.Request) {
	if s.autoEngine == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "automation engine not available"})
		return
	}

	id := r.PathValue("id")
	if id == "_inline" {
		var req struct {
			LuaCode string `json:"lua_code"`
		}
		if !s.decodeBody(w, r, &req, false) {
			return
		}
		s.writeJSON(w, http.StatusOK, s.autoEngine.RunLuaCode(req.LuaCode))
		return
	}
	s.writeJSON(w, http.StatusOK, s.autoEngine.RunScript(id))
}

// reload restarts or stops a script VM after its file changed.
func (s *Server) reload(id string) {
	if s.autoEngine == nil {
		return
	}
	if err := s.autoEngine.ReloadScript(id); err != nil {
		s.logger.Error("reload script", "id", id, "err", err)
	}
}
