package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dev-sujan/prepdesk/pkg/config"
)

const (
	sessionTokenKey = "access_token"
	sessionStateKey = "oauth_state"
)

// AuthRequired gates the app behind a session token. Pages redirect to the
// login screen; API calls get a bare 401.
func AuthRequired(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get(sessionTokenKey) == nil {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		} else {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
		}
		return
	}
	c.Next()
}

// sessionToken returns the GitHub token stored at login, or "".
func sessionToken(c *gin.Context) string {
	if v := sessions.Default(c).Get(sessionTokenKey); v != nil {
		if token, ok := v.(string); ok {
			return token
		}
	}
	return ""
}

// LoginPage shows the login screen.
func (s *Server) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{"Title": s.Site.Title})
}

// GithubLogin starts the OAuth flow with a fresh state nonce.
func (s *Server) GithubLogin(c *gin.Context) {
	state := uuid.NewString()
	session := sessions.Default(c)
	session.Set(sessionStateKey, state)
	if err := session.Save(); err != nil {
		c.String(http.StatusInternalServerError, "session save failed")
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, config.OauthConf.AuthCodeURL(state, oauth2.AccessTypeOffline))
}

// AuthCallback finishes the OAuth flow. The state parameter must match the
// nonce issued at login.
func (s *Server) AuthCallback(c *gin.Context) {
	session := sessions.Default(c)
	want, _ := session.Get(sessionStateKey).(string)
	session.Delete(sessionStateKey)

	if want == "" || c.Query("state") != want {
		s.log.Warn().Str("ip", c.ClientIP()).Msg("oauth callback with bad state")
		c.String(http.StatusBadRequest, "OAuth state mismatch")
		return
	}

	token, err := config.OauthConf.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		s.log.Error().Err(err).Msg("oauth exchange failed")
		c.String(http.StatusBadGateway, "OAuth exchange failed")
		return
	}

	session.Set(sessionTokenKey, token.AccessToken)
	if err := session.Save(); err != nil {
		c.String(http.StatusInternalServerError, "session save failed")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// Logout clears the session.
func (s *Server) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.Redirect(http.StatusFound, "/login")
}
