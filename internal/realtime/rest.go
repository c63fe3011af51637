package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"sl-ot-viewer/internal/company"
	"sl-ot-viewer/internal/protocol"
	"sl-ot-viewer/internal/session"
)

type repoResponse struct {
	Repo *string `json:"repo"`
}

type terminalInputRequest struct {
	Data string `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorPayload{Code: code, Message: message})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	var resp repoResponse
	if repo := s.Repo(); repo != "" {
		resp.Repo = &repo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	repo, data, err := s.loadCompany(r.URL.Query().Get("repo"))
	switch {
	case errors.Is(err, errNoRepo):
		writeError(w, http.StatusBadRequest, protocol.ErrDataLoadFailed, err.Error())
		return
	case errors.Is(err, company.ErrNoCompanyDir):
		writeError(w, http.StatusNotFound, protocol.ErrNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, protocol.ErrDataLoadFailed, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, protocol.DataCompanyPayload{Repo: repo, Data: data})
}

func (s *Server) handleGetLocal(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	content, err := company.ReadLocalJSON(s.exeDir, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, company.ErrInvalidName) {
			writeError(w, http.StatusNotFound, protocol.ErrNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, protocol.ErrDataLoadFailed, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (s *Server) handleStartTerminal(w http.ResponseWriter, r *http.Request) {
	status, err := s.startTerminal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, protocol.ErrSpawnFailed, err.Error())
		return
	}

	if !status.AlreadyRunning {
		s.broadcast(statusMessage(status))
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetTerminal(w http.ResponseWriter, r *http.Request) {
	info, ok := s.currentTerminal()
	if !ok {
		writeError(w, http.StatusNotFound, protocol.ErrNoActiveSession, session.ErrNoActiveSession.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTerminalInput(w http.ResponseWriter, r *http.Request) {
	var req terminalInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, "invalid request body")
		return
	}

	if req.Data == "" {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, "data is required")
		return
	}

	if err := s.writeTerminal([]byte(req.Data)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNoActiveSession) {
			status = http.StatusConflict
		}
		writeError(w, status, writeErrorCode(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
