package server

import (
	"errors"
	"net/http"
	"strings"

	"receiptgen/internal/access"
	"receiptgen/internal/logging"
	"receiptgen/internal/telegram"
)

// authStatus maps gate errors onto HTTP statuses.
func authStatus(err error) int {
	switch {
	case errors.Is(err, access.ErrInvalidLogin),
		errors.Is(err, telegram.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrBadCredentials),
		errors.Is(err, access.ErrSessionExpired),
		errors.Is(err, access.ErrInvalidSession),
		errors.Is(err, access.ErrSessionRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrNotMember),
		errors.Is(err, access.ErrEmergencyDisabled):
		return http.StatusForbidden
	case errors.Is(err, access.ErrUnknownUsername):
		return http.StatusNotFound
	case errors.Is(err, access.ErrUnavailable),
		errors.Is(err, telegram.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) loggedIn(w http.ResponseWriter, sess *access.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.Claims.Expiry(),
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.cfg.Server.PublicURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, access.NewLoginResponse(sess))
}

func (s *Server) handleLoginTelegram(w http.ResponseWriter, r *http.Request) {
	var d telegram.LoginData
	if err := decodeJSON(r, &d, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.gate.LoginWidget(r.Context(), d)
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	s.loggedIn(w, sess)
}

func (s *Server) handleLoginUsername(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.gate.LoginUsername(r.Context(), in.Username)
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	s.loggedIn(w, sess)
}

func (s *Server) handleLoginEmergency(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.gate.LoginEmergency(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	s.loggedIn(w, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.gate.Logout(r.Context(), token); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, ok(nil))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, ok(map[string]any{
		"user":      c.User,
		"method":    c.Method,
		"authDate":  c.AuthDate,
		"expiresAt": c.Expiry(),
	}))
}

func (s *Server) handleTelegramConfig(w http.ResponseWriter, r *http.Request) {
	// Never includes the bot token.
	writeJSON(w, http.StatusOK, ok(map[string]any{
		"configured":       s.tg.Configured(),
		"botUsername":      s.cfg.Telegram.BotUsername,
		"groupChatId":      s.tg.ChatID(),
		"emergencyEnabled": s.gate.EmergencyEnabled(),
	}))
}

func (s *Server) handleVerifyMember(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID int64 `json:"userId"`
	}
	if err := decodeJSON(r, &in, false); err != nil || in.UserID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !s.tg.Configured() {
		writeError(w, http.StatusServiceUnavailable, telegram.ErrNotConfigured.Error())
		return
	}
	m, err := s.tg.GetChatMember(r.Context(), in.UserID)
	if err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			writeJSON(w, http.StatusOK, ok(map[string]any{"isMember": false}))
			return
		}
		writeError(w, http.StatusBadGateway, "failed to verify membership")
		return
	}
	logging.Access("membership check for user %d: %s", in.UserID, m.Status)
	writeJSON(w, http.StatusOK, ok(map[string]any{
		"isMember": m.IsMember(),
		"status":   m.Status,
		"user":     m.User,
	}))
}

func (s *Server) handleUsernameLookup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimPrefix(strings.TrimSpace(in.Username), "@")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	members, err := s.tg.Members(r.Context())
	if err != nil {
		writeError(w, authStatus(err), "failed to fetch group members")
		return
	}
	for _, m := range members {
		if strings.EqualFold(m.User.Username, username) {
			writeJSON(w, http.StatusOK, ok(map[string]any{"user": m.User}))
			return
		}
	}
	writeError(w, http.StatusNotFound, access.ErrUnknownUsername.Error())
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.tg.Members(r.Context())
	if err != nil {
		writeError(w, authStatus(err), "failed to fetch group members")
		return
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{"members": members}))
}

func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	status, err := s.tg.ValidateConfig(r.Context())
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{"botInfo": status.Bot, "chatInfo": status.Chat}))
}
