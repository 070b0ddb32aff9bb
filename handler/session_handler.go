package handler

import (
	"context"
	"errors"

	"mongosession/config"
	"mongosession/converter"
	"mongosession/dto"
	"mongosession/middleware"
	"mongosession/model"
	"mongosession/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionFinder looks up the stored sessions of a principal.
type SessionFinder interface {
	FindByPrincipalName(ctx context.Context, principal string) (map[string]*model.Session, error)
	FindByPrincipalNameAndIndex(ctx context.Context, principal, indexName string, indexValue any) (map[string]*model.Session, error)
}

// Attributes managed by login; clients cannot write them directly.
var reservedAttributes = map[string]bool{
	model.PrincipalNameIndexName: true,
	model.SavedRequestAttribute:  true,
	model.DeviceInfoAttribute:    true,
}

type SessionHandler struct {
	Finder    SessionFinder
	Cfg       config.SessionConfig
	Converter *converter.SessionConverter
	Logger    *zap.Logger
}

func NewSessionHandler(finder SessionFinder, cfg config.SessionConfig, conv *converter.SessionConverter, logger *zap.Logger) *SessionHandler {
	if conv == nil {
		conv = converter.NewSessionConverter(nil)
	}
	return &SessionHandler{
		Finder:    finder,
		Cfg:       cfg,
		Converter: conv,
		Logger:    utils.LoggerOrNop(logger),
	}
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		utils.InternalError(c, "Session not available")
		return
	}
	utils.Success(c, dto.ToSessionResponse(session))
}

// SetAttribute stores the JSON value of the request body under :name. A null
// value removes the attribute.
func (h *SessionHandler) SetAttribute(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		utils.InternalError(c, "Session not available")
		return
	}

	name := c.Param("name")
	if !h.writableAttribute(c, name) {
		return
	}

	var req dto.AttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request format")
		return
	}

	// Values must survive a round trip through the store before they are kept.
	candidate := model.RestoreSession(session.ID(), session.CreationTime(), session.LastAccessedTime(),
		session.MaxInactiveInterval(), map[string]any{name: req.Value})
	if _, err := h.Converter.ToDocument(candidate); err != nil {
		utils.BadRequest(c, "Unsupported attribute value")
		return
	}

	session.SetAttribute(name, req.Value)
	utils.Success(c, dto.ToSessionResponse(session))
}

func (h *SessionHandler) DeleteAttribute(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		utils.InternalError(c, "Session not available")
		return
	}

	name := c.Param("name")
	if !h.writableAttribute(c, name) {
		return
	}
	if _, ok := session.Attribute(name); !ok {
		utils.NotFound(c, "Attribute not found")
		return
	}

	session.RemoveAttribute(name)
	utils.NoContent(c)
}

func (h *SessionHandler) writableAttribute(c *gin.Context, name string) bool {
	if err := converter.ValidateAttributeName(name); err != nil {
		utils.BadRequest(c, "Invalid attribute name")
		return false
	}
	if reservedAttributes[name] {
		utils.BadRequest(c, "Attribute is managed by the server")
		return false
	}
	return true
}

// Login binds a principal to the current session and returns the request that
// was interrupted by authentication, if any. The saved request stays in the
// session until the client replays it.
func (h *SessionHandler) Login(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		utils.InternalError(c, "Session not available")
		return
	}

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request format")
		return
	}

	session.SetAttribute(model.PrincipalNameIndexName, req.Principal)
	session.SetAttribute(model.DeviceInfoAttribute, model.ParseDeviceInfo(c.GetHeader("User-Agent")))

	resp := dto.LoginResponse{}
	if v, ok := session.Attribute(model.SavedRequestAttribute); ok {
		if saved, ok := v.(*model.SavedRequest); ok {
			resp.Redirect = saved.RequestURL
		}
	}
	resp.Session = dto.ToSessionResponse(session)

	h.Logger.Info("principal bound to session",
		zap.String("session_id", session.ID()),
		zap.String("principal", req.Principal),
	)
	utils.Success(c, resp)
}

func (h *SessionHandler) Logout(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		utils.InternalError(c, "Session not available")
		return
	}

	middleware.InvalidateSession(c, h.Cfg)
	utils.Success(c, gin.H{
		"message": "Successfully logged out",
	})
}

// ListPrincipalSessions returns every live session of the current principal.
func (h *SessionHandler) ListPrincipalSessions(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		utils.InternalError(c, "Session not available")
		return
	}

	sessions, err := h.Finder.FindByPrincipalName(c.Request.Context(), session.PrincipalName())
	if err != nil {
		h.Logger.Error("failed to list sessions", zap.Error(err))
		utils.InternalError(c, "Failed to fetch sessions")
		return
	}

	utils.Success(c, gin.H{
		"sessions": dto.ToSessionResponses(sessions, session.ID()),
	})
}

// SearchSessions finds the current principal's sessions whose attribute name
// equals the string value.
func (h *SessionHandler) SearchSessions(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		utils.InternalError(c, "Session not available")
		return
	}

	name := c.Query("name")
	value, ok := c.GetQuery("value")
	if name == "" || !ok {
		utils.BadRequest(c, "name and value are required")
		return
	}

	sessions, err := h.Finder.FindByPrincipalNameAndIndex(c.Request.Context(), session.PrincipalName(), name, value)
	if errors.Is(err, converter.ErrInvalidAttributeName) {
		utils.BadRequest(c, "Invalid attribute name")
		return
	}
	if err != nil {
		h.Logger.Error("failed to search sessions", zap.String("name", name), zap.Error(err))
		utils.InternalError(c, "Failed to fetch sessions")
		return
	}

	utils.Success(c, gin.H{
		"sessions": dto.ToSessionResponses(sessions, session.ID()),
	})
}
