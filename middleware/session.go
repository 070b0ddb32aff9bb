package middleware

import (
	"context"
	"net/http"

	"mongosession/config"
	"mongosession/model"
	"mongosession/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionContextKey     = "session"
	invalidatedContextKey = "session_invalidated"
)

type SessionRepository interface {
	CreateSession() *model.Session
	Save(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// SessionMiddleware loads the session named by the session cookie, or starts a
// new one, and stores it once the handler chain has run. A session that cannot
// be read is replaced by a new one.
func SessionMiddleware(repo SessionRepository, cfg config.SessionConfig, clock model.Clock, logger *zap.Logger) gin.HandlerFunc {
	if clock == nil {
		clock = model.RealClock{}
	}
	logger = utils.LoggerOrNop(logger)

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var session *model.Session
		if id, err := c.Cookie(cfg.CookieName); err == nil && id != "" {
			session, err = repo.GetSession(ctx, id)
			if err != nil {
				utils.TrackError("middleware", "session_load_failed")
				logger.Warn("discarding unreadable session", zap.String("session_id", id), zap.Error(err))
			}
		}
		if session == nil {
			session = repo.CreateSession()
		}
		session.Touch(clock)

		c.Set(sessionContextKey, session)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.CookieName, session.ID(), 0, "/", "", cfg.CookieSecure, true)

		c.Next()

		if c.GetBool(invalidatedContextKey) {
			if err := repo.DeleteSession(ctx, session.ID()); err != nil {
				logger.Error("failed to delete session", zap.String("session_id", session.ID()), zap.Error(err))
			}
			return
		}

		if err := repo.Save(ctx, session); err != nil {
			utils.TrackError("middleware", "session_save_failed")
			logger.Error("failed to save session", zap.String("session_id", session.ID()), zap.Error(err))
		}
	}
}

// CurrentSession returns the session attached by SessionMiddleware.
func CurrentSession(c *gin.Context) *model.Session {
	if v, ok := c.Get(sessionContextKey); ok {
		if session, ok := v.(*model.Session); ok {
			return session
		}
	}
	return nil
}

// InvalidateSession expires the session cookie and has SessionMiddleware delete
// the session instead of saving it. Call it before writing the response.
func InvalidateSession(c *gin.Context, cfg config.SessionConfig) {
	c.Set(invalidatedContextKey, true)
	c.SetCookie(cfg.CookieName, "", -1, "/", "", cfg.CookieSecure, true)
}

// RequirePrincipal rejects requests whose session has no principal. The
// rejected request is kept in the session so login can send the client back;
// it is dropped once the client replays it.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := CurrentSession(c)
		if session == nil {
			utils.InternalError(c, "Session not available")
			return
		}
		if session.PrincipalName() != "" {
			if v, ok := session.Attribute(model.SavedRequestAttribute); ok {
				if saved, ok := v.(*model.SavedRequest); ok && saved.Matches(c.Request) {
					session.RemoveAttribute(model.SavedRequestAttribute)
				}
			}
			c.Next()
			return
		}

		session.SetAttribute(model.SavedRequestAttribute, model.NewSavedRequest(c.Request))
		utils.Unauthorized(c, "Authentication required", gin.H{"login": "/api/session/login"})
	}
}
