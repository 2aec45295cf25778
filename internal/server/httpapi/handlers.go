package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/smsbridge/internal/common"
	"github.com/dmitrijs2005/smsbridge/internal/server/authn"
	"github.com/dmitrijs2005/smsbridge/internal/server/services"
)

// maxBodyBytes caps inbound request bodies; SMS payloads are tiny.
const maxBodyBytes = 1 << 20

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type incomingRequest struct {
	Secret     string `json:"secret"`
	From       string `json:"from"`
	Body       string `json:"body"`
	ReceivedAt string `json:"receivedAt"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"dedupWindowSeconds": s.dedupWindowSeconds,
		"auth": map[string]any{
			"bearerRequired":          s.policy.AuthRequired,
			"allowSecretAuthFallback": s.policy.AllowSecretFallback,
			"legacySecret":            s.policy.AllowLegacySecret,
			"hmac":                    true,
			"hmacWindowSeconds":       s.policy.HMACWindowSeconds,
		},
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	user, token, err := s.users.Signup(r.Context(), username, email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		s.logger.Error(r.Context(), "signup failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"token": token,
		"user":  userResponse{ID: user.ID, Username: user.UserName, Email: user.Email},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	user, token, err := s.users.Login(r.Context(), identifier, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		s.logger.Error(r.Context(), "login failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"token": token,
		"user":  userResponse{ID: user.ID, Username: user.UserName, Email: user.Email},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	if err := s.users.RevokeToken(r.Context(), token); err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		s.logger.Error(r.Context(), "logout failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	if !s.telegramConfigured {
		writeError(w, http.StatusInternalServerError, "server not configured")
		return
	}

	// The raw bytes feed the HMAC check, so the body is read before parsing.
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var payload incomingRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.From == "" || payload.Body == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	_, err = s.auth.Authenticate(r.Context(), &authn.Request{
		BearerToken:   bearerToken(r),
		TimestampHdr:  r.Header.Get("X-Timestamp"),
		SignatureHdr:  r.Header.Get("X-Signature"),
		RawBody:       raw,
		PayloadSecret: payload.Secret,
	})
	if err != nil {
		if errors.Is(err, common.ErrorMisconfigured) {
			writeError(w, http.StatusInternalServerError, "server missing bridge secret")
			return
		}
		s.metrics.IncAuthRejected()
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := s.sms.Process(r.Context(), services.IncomingSMS{
		From:       payload.From,
		Body:       payload.Body,
		ReceivedAt: payload.ReceivedAt,
	})
	if err != nil {
		s.logger.Error(r.Context(), "processing failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"duplicate": true,
			"id":        result.ID,
		})
		return
	}

	if result.DeliveryError != "" {
		writeError(w, http.StatusBadGateway, "telegram error: "+result.DeliveryError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"duplicate":           false,
		"id":                  result.ID,
		"telegram_message_id": result.TelegramMessageID,
	})
}

// bearerToken extracts the token from an "Authorization: Bearer x" header,
// or returns "" when the header is absent or malformed.
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
