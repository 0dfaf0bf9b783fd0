// Package web serves the gateway's operator portal: a status summary, the
// live session table, and the Prometheus metrics endpoint.
package web

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cptaffe/znc-xmpp/internal/config"
	"github.com/cptaffe/znc-xmpp/internal/metrics"
	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

// Portal is the HTTP side of the gateway.
type Portal struct {
	server  *xmpp.Server
	cfg     *config.Config
	echo    *echo.Echo
	started time.Time
}

// NewPortal wires the routes. Start must be called separately.
func NewPortal(server *xmpp.Server, cfg *config.Config) *Portal {
	portal := &Portal{
		server:  server,
		cfg:     cfg,
		echo:    echo.New(),
		started: time.Now(),
	}
	portal.echo.HideBanner = true

	portal.echo.GET("/", portal.handleStatus)
	portal.echo.GET("/sessions", portal.handleSessions)
	portal.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	return portal
}

// Start serves the portal. Blocks until the listener closes.
func (p *Portal) Start() error {
	return p.echo.Start(p.cfg.Web.Listen)
}

// Handler exposes the portal as an http.Handler, for tests.
func (p *Portal) Handler() http.Handler { return p.echo }

// Stop shuts the portal down.
func (p *Portal) Stop() error {
	log.Println("Stopping web portal")
	return p.echo.Close()
}

func (p *Portal) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"domain":   p.server.ServerName(),
		"sessions": p.server.Directory().Len(),
		"uptime":   time.Since(p.started).Round(time.Second).String(),
	})
}

// handleSessions lists the connected XMPP sessions with their joined rooms.
func (p *Portal) handleSessions(c echo.Context) error {
	if !p.authenticateRequest(c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	sessions := make([]map[string]interface{}, 0)
	for _, session := range p.server.Directory().Sessions() {
		rooms := make([]string, 0)
		for _, m := range session.Memberships() {
			if m.Pending {
				continue
			}
			rooms = append(rooms, m.JID.Bare().String())
		}
		sessions = append(sessions, map[string]interface{}{
			"jid":      session.JID().String(),
			"remote":   session.RemoteAddr(),
			"priority": session.Priority(),
			"rooms":    rooms,
		})
	}
	return c.JSON(http.StatusOK, sessions)
}

// authenticateRequest checks a bearer token against the configured list. An
// empty list leaves the portal open, for development setups.
func (p *Portal) authenticateRequest(req *http.Request) bool {
	if len(p.cfg.Web.BearerTokens) == 0 {
		return true
	}

	authHeader := req.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	for _, validToken := range p.cfg.Web.BearerTokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(validToken)) == 1 {
			return true
		}
	}
	return false
}
