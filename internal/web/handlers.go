package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/kaptinlin/jsonschema"

	"github.com/sweeney/lockbox/internal/session"
)

const (
	maxBodyBytes        = 64 << 10
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	commandSource       = "Web"
)

type errorJSON struct {
	Error string `json:"error"`
}

type stateJSON struct {
	State string `json:"state"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorJSON{Error: msg})
}

// commandStatus maps engine errors onto HTTP status codes.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrInterlock):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrProvisioning):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrWrongState):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidConfig), errors.Is(err, session.ErrRejected):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrTimeModificationDisabled):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (s *Server) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, stateJSON{State: s.ctrl.State().String()})
}

// readBody reads a request body and checks it against schema. An empty body
// is treated as an empty object.
func readBody(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "malformed JSON")
		return nil, false
	}
	if schema != nil {
		if err := validate(schema, body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
	}
	return body, true
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildDetails(s.ctrl.Presets(), s.ctrl.Deterrents(), s.ctrl.SystemDefaults()))
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	rewards, ok := s.ctrl.Rewards()
	if !ok {
		writeError(w, http.StatusForbidden, "reward codes are hidden during a session")
		return
	}
	out := make([]RewardJSON, 0, len(rewards))
	for _, rw := range rewards {
		if rw.Code == "" {
			continue
		}
		out = append(out, RewardJSON{Code: rw.Code, Checksum: rw.Checksum})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.logs.Logs())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := s.history.ListSessions(r.Context(), limit)
	if err != nil {
		log.Printf("web: list sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	out := make([]HistoryJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyJSON(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, armSchema)
	if !ok {
		return
	}
	var req ArmRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := req.SessionConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	final, err := s.ctrl.StartSession(cfg)
	if err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}
	resp := ArmResponse{State: s.ctrl.State().String()}
	if !cfg.HideTimer {
		resp.LockDuration = &final
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartTest(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartTest(); err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}
	s.writeState(w)
}

func (s *Server) handleStopTest(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StopTest()
	s.writeState(w)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Abort(commandSource)
	s.writeState(w)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if st := s.ctrl.State(); st != session.StateArmed {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot trigger in %s", st))
		return
	}
	s.ctrl.Trigger(commandSource)
	s.writeState(w)
}

func (s *Server) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	s.ctrl.PetWatchdog()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModifyTime(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, modifyTimeSchema)
	if !ok {
		return
	}
	var req ModifyTimeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	remaining, err := s.ctrl.ModifyTime(req.Direction == "increase")
	if err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Remaining uint32 `json:"remaining"`
	}{remaining})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Acknowledge(); err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}
	s.writeState(w)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.NotFound(w, r)
		return
	}
	body, ok := readBody(w, r, settingsSchema)
	if !ok {
		return
	}
	next := s.settings.Current()
	req := SettingsRequest{Presets: next.Presets, Deterrents: next.Deterrents}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	next.Presets = req.Presets
	next.Deterrents = req.Deterrents

	fixes := next.Normalize()
	for _, f := range fixes {
		log.Printf("web: settings corrected: %s", f)
	}
	presets, deterrents := next.SessionPresets(), next.DeterrentConfig()
	if err := session.CheckSettings(presets, deterrents); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ctrl.UpdateSettings(presets, deterrents); err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}
	fp, err := s.settings.Save(next)
	if err != nil {
		log.Printf("web: save settings: %v", err)
		writeError(w, http.StatusInternalServerError, "settings applied but not saved")
		return
	}
	s.tracker.SetFingerprint(fp)
	if fixes == nil {
		fixes = []string{}
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Corrections: fixes, Fingerprint: fp})
}
