package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/answerflow/api"
	"github.com/BaSui01/answerflow/checkpoint"
	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ 会话接口 Handler
// =============================================================================

// SessionHandler 会话存档查询处理器
type SessionHandler struct {
	store  checkpoint.Store
	logger *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(store checkpoint.Store, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		store:  store,
		logger: logger,
	}
}

// HandleSession 处理 /v1/sessions/{id} 的查询与删除
// @Summary 会话历史
// @Description GET 查询会话历史，DELETE 删除会话存档
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response{data=api.SessionResponse} "会话历史"
// @Failure 404 {object} Response "会话不存在"
// @Router /v1/sessions/{id} [get]
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "session id is required", h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getSession(w, r, sessionID)
	case http.MethodDelete:
		h.deleteSession(w, r, sessionID)
	default:
		WriteError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed", h.logger)
	}
}

func (h *SessionHandler) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := h.store.Load(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			WriteError(w, http.StatusNotFound, CodeNotFound, "session not found", h.logger)
			return
		}
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to load session", h.logger)
		return
	}

	resp := api.SessionResponse{
		SessionID: session.SessionID,
		Turns:     make([]api.TurnInfo, 0, len(session.Turns)),
		UpdatedAt: session.UpdatedAt,
	}
	for _, turn := range session.Turns {
		resp.Turns = append(resp.Turns, api.TurnInfo{
			RequestID:  turn.RequestID,
			Question:   turn.Question,
			Answer:     turn.Answer,
			Category:   turn.Category,
			Mode:       turn.Mode,
			Confidence: turn.Confidence,
			AskedAt:    turn.AskedAt,
		})
	}

	WriteSuccess(w, resp)
}

func (h *SessionHandler) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.store.Delete(r.Context(), sessionID); err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to delete session", h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"session_id": sessionID, "status": "deleted"})
}
