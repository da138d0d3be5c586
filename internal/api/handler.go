package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
)

const (
	maxBodyBytes   = 1 << 20
	maxMetricsDays = 90
)

// ============ Health / Auth ============

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.wa != nil {
		resp["whatsapp"] = s.wa.Status().Connected
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.config.Password)) == 1
	if !userOK || !passOK {
		s.log.Warn("Panel login rejected", zap.String("username", req.Username), zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := IssueToken(s.config.JWTSecret, req.Username, s.now())
	if err != nil {
		s.log.Error("Failed to sign token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ============ Config ============

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configRepo.Get())
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := decodeBody(w, r, &partial); err != nil || partial == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.configRepo.Save(r.Context(), partial); err != nil {
		s.writeConfigError(w, err)
		return
	}
	s.log.Info("Config saved from panel", zap.String("user", UserFromContext(r.Context())))
	writeJSON(w, http.StatusOK, s.configRepo.Get())
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	content := s.configRepo.Get().Content
	if content == nil {
		content = map[string]any{}
	}
	writeJSON(w, http.StatusOK, content)
}

// handleSetContext stores {"value": "..."} as a plain string and any other
// JSON document as-is
func (s *Server) handleSetContext(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")

	var body any
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value := body
	if obj, ok := body.(map[string]any); ok && len(obj) == 1 {
		if str, ok := obj["value"].(string); ok {
			value = str
		}
	}

	err := s.configRepo.Update(r.Context(), func(cfg *domain.BotConfig) error {
		return cfg.SetContent(section, value)
	})
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"section": section, "value": value})
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")

	err := s.configRepo.Update(r.Context(), func(cfg *domain.BotConfig) error {
		return cfg.DeleteContent(section)
	})
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "section": section})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.configRepo.Reload(r.Context()); err != nil {
		s.writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.configRepo.Get())
}

func (s *Server) writeConfigError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrSectionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		s.log.Error("Config write failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save config")
	}
}

// ============ WhatsApp ============

func (s *Server) handleWhatsAppStatus(w http.ResponseWriter, r *http.Request) {
	if s.wa == nil {
		writeError(w, http.StatusServiceUnavailable, "whatsapp transport not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.wa.Status())
}

func (s *Server) handleWhatsAppQR(w http.ResponseWriter, r *http.Request) {
	if s.wa == nil {
		writeError(w, http.StatusServiceUnavailable, "whatsapp transport not configured")
		return
	}
	st := s.wa.Status()
	if st.Connected {
		writeJSON(w, http.StatusOK, map[string]any{"connected": true})
		return
	}
	if st.LastQR == "" {
		writeError(w, http.StatusNotFound, "no QR code available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":   false,
		"qr":          st.LastQR,
		"generatedAt": st.LastQRAt,
	})
}

func (s *Server) handleWhatsAppLogout(w http.ResponseWriter, r *http.Request) {
	if s.wa == nil {
		writeError(w, http.StatusServiceUnavailable, "whatsapp transport not configured")
		return
	}
	if err := s.wa.Logout(r.Context()); err != nil {
		s.log.Error("WhatsApp logout failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "logout failed: "+err.Error())
		return
	}
	s.log.Info("WhatsApp logged out from panel", zap.String("user", UserFromContext(r.Context())))
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// ============ AI ============

type messageRequest struct {
	Message string `json:"message"`
}

type aiTestResponse struct {
	*usecase.PipelineResult
	ChatID string `json:"chatId"`
	Error  string `json:"error,omitempty"`
}

// handleAITest runs the pipeline for a synthetic chat; no chat state or
// analytics are touched
func (s *Server) handleAITest(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.readMessage(w, r)
	if !ok {
		return
	}
	res := s.pipeline.Evaluate(r.Context(), msg, nil, s.configRepo.Get())
	resp := aiTestResponse{PipelineResult: res, ChatID: "panel-test-" + uuid.NewString()}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAIIntent(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.readMessage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, usecase.ClassifyIntent(msg))
}

func (s *Server) handleAIMetrics(w http.ResponseWriter, r *http.Request) {
	if s.analyticsRepo == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}

	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed <= 0 || parsed > maxMetricsDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(maxMetricsDays))
			return
		}
		days = parsed
	}

	summary, err := s.analyticsRepo.Summary(r.Context(), days, s.now())
	if err != nil {
		s.log.Error("Failed to build analytics summary", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) readMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req messageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return "", false
	}
	return msg, true
}

// ============ Chats ============

type chatSnapshot struct {
	ChatID          string              `json:"chatId"`
	Mode            domain.Mode         `json:"mode"`
	Admin           domain.AdminSession `json:"admin"`
	HistoryLength   int                 `json:"historyLength"`
	ErrorCount      int                 `json:"errorCount"`
	LastMessageTime time.Time           `json:"lastMessageTime"`
	LastErrorTime   time.Time           `json:"lastErrorTime"`
	LastWelcomeDate string              `json:"lastWelcomeDate,omitempty"`
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	state, ok := s.chatRepo.Peek(r.Context(), chatID)
	if !ok {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, chatSnapshot{
		ChatID:          state.ChatID,
		Mode:            state.Mode,
		Admin:           state.Admin,
		HistoryLength:   len(state.History),
		ErrorCount:      state.ErrorCount,
		LastMessageTime: state.LastMessageTime,
		LastErrorTime:   state.LastErrorTime,
		LastWelcomeDate: state.LastWelcomeDate,
	})
}

// ============ Helper Functions ============

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
