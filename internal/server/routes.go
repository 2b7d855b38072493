package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wanotify/internal/directory"
	"wanotify/internal/ledger"
	"wanotify/internal/notify"
	"wanotify/internal/webhook"
)

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/login", s.handleLogin)
	s.router.GET("/logout", s.handleLogout)

	s.router.POST("/webhook/lynk/:phoneNumber/:merchantKey", s.handleWebhook)
	s.router.GET("/send", s.handleSend)
	s.router.GET("/redirect", s.handleRedirect)
	s.router.GET("/messages", s.handleMessages)

	s.router.GET("/users", s.handleListUsers)
	s.router.GET("/user/:nama", s.handleGetUser)
	s.router.GET("/user/:nama/check-expiration", s.handleCheckExpiration)
	s.router.POST("/user", s.handleCreateUser)
	s.router.PUT("/user/:nama", s.handleUpdateUser)

	s.router.GET("/config", s.handleConfig)
	s.router.GET("/config/:section", s.handleConfigSection)
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.deps.Session.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  s.cfg.App.Name,
		"version":  version,
		"uptime":   time.Since(s.started).String(),
		"whatsapp": st.State.String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.deps.Session.Status()
	users, _ := s.deps.Directory.List()
	rows, _ := s.deps.Ledger.Query(c.Request.Context(), ledger.Filter{})
	c.JSON(http.StatusOK, gin.H{
		"state":             st.State.String(),
		"ready":             st.Ready(),
		"reconnect_attempt": st.ReconnectAttempt,
		"last_error":        st.LastError,
		"pairing":           len(st.PairingChallenge) > 0,
		"users":             len(users),
		"messages":          len(rows),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.deps.Session.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "logged_out",
		"message": "Logged out. Visit /login to pair again.",
	})
}

// webhookEnvelope is the upstream POST body. Data stays raw so the
// processor owns its interpretation.
type webhookEnvelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unreadable body"})
		return
	}

	var env webhookEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid JSON body"})
			return
		}
	}

	out := s.deps.Processor.Handle(c.Request.Context(), webhook.Request{
		Recipient:   c.Param("phoneNumber"),
		MerchantKey: c.Param("merchantKey"),
		Event:       env.Event,
		Data:        env.Data,
		Signature:   extractSignature(c, env),
		RawBody:     raw,
	})
	c.JSON(out.Status, out.Body)
}

// extractSignature walks the header fallback chain the upstream provider
// has used across versions, ending at the body field.
func extractSignature(c *gin.Context, env webhookEnvelope) string {
	for _, header := range []string{"x-lynk-signature", "x-signature", "signature"} {
		if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(env.Signature)
}

func (s *Server) handleSend(c *gin.Context) {
	number := strings.TrimSpace(c.Query("nm"))
	if number == "" {
		number = s.cfg.WhatsApp.DefaultNumber
	}
	body := strings.TrimSpace(c.Query("m"))
	if body == "" {
		body = s.cfg.WhatsApp.DefaultMessage
	}
	if number == "" || body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "missing nm or m parameter"})
		return
	}

	ctx, cancel := s.sendContext(c)
	defer cancel()
	rec, err := s.deps.Notifier.Notify(ctx, number, body, ledger.KindManual, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "sent",
		"number":  rec.Recipient,
		"message": body,
	})
}

// defaultRedirectURL is where visitors land when no url parameter is
// given, matching the upstream bot.
const defaultRedirectURL = "https://wa.link/5g7b1o"

func (s *Server) handleRedirect(c *gin.Context) {
	target := strings.TrimSpace(c.Query("url"))
	if target == "" {
		target = strings.TrimSpace(c.Query("to"))
	}
	if target == "" {
		target = defaultRedirectURL
	}

	ctx, cancel := s.sendContext(c)
	defer cancel()
	_, _ = s.deps.Notifier.Notify(ctx, s.cfg.WhatsApp.DefaultNumber, s.cfg.WhatsApp.DefaultMessage, ledger.KindRedirect, nil)
	c.Redirect(http.StatusFound, target)
}

func (s *Server) handleMessages(c *gin.Context) {
	filter := ledger.Filter{Limit: 50}
	if phone := strings.TrimSpace(c.Query("phone")); phone != "" {
		filter.Recipient = notify.NormalizePhone(phone)
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	rows, err := s.deps.Ledger.Query(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(rows),
		"messages": rows,
	})
}

func (s *Server) handleListUsers(c *gin.Context) {
	subs, err := s.deps.Directory.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(subs),
		"users": subs,
	})
}

func (s *Server) handleGetUser(c *gin.Context) {
	sub, ok := s.findUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": sub})
}

func (s *Server) handleCheckExpiration(c *gin.Context) {
	sub, ok := s.findUser(c)
	if !ok {
		return
	}
	status, err := directory.CheckExpiration(sub, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) findUser(c *gin.Context) (directory.Subscriber, bool) {
	identifier := notify.NormalizePhone(c.Param("nama"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid identifier"})
		return directory.Subscriber{}, false
	}
	sub, err := s.deps.Directory.Find(identifier)
	if errors.Is(err, directory.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "user not found"})
		return directory.Subscriber{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return directory.Subscriber{}, false
	}
	return sub, true
}

type userRequest struct {
	Nama string `json:"nama"`
	// The upstream admin tooling has sent both field names over time.
	EndDate   string `json:"endDate"`
	ExpiresOn string `json:"expires_on"`
}

func (r userRequest) expiration() string {
	if strings.TrimSpace(r.EndDate) != "" {
		return r.EndDate
	}
	return r.ExpiresOn
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid JSON body"})
		return
	}
	identifier := notify.NormalizePhone(req.Nama)
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "missing nama"})
		return
	}
	expires, err := directory.NormalizeExpiresOn(req.expiration())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	sub := directory.Subscriber{Identifier: identifier, ExpiresOn: expires}
	if err := s.deps.Directory.Put(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "user": sub})
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid JSON body"})
		return
	}
	identifier := notify.NormalizePhone(c.Param("nama"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid identifier"})
		return
	}
	sub, err := s.deps.Directory.SetExpiration(identifier, req.expiration())
	if errors.Is(err, directory.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "user not found"})
		return
	}
	if errors.Is(err, directory.ErrInvalidExpires) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "user": sub})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.redactedConfig())
}

func (s *Server) handleConfigSection(c *gin.Context) {
	section := c.Param("section")
	cfg := s.redactedConfig()
	out, ok := cfg[section]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "unknown section"})
		return
	}
	c.JSON(http.StatusOK, gin.H{section: out})
}

// redactedConfig is the runtime configuration with secrets masked.
func (s *Server) redactedConfig() gin.H {
	passphrase := ""
	if s.cfg.WhatsApp.Passphrase != "" {
		passphrase = "********"
	}
	return gin.H{
		"app": gin.H{
			"name":         s.cfg.App.Name,
			"addr":         s.cfg.App.Addr,
			"cors_origins": s.cfg.App.CorsOrigins,
		},
		"whatsapp": gin.H{
			"transport":       s.cfg.WhatsApp.Transport,
			"auth_path":       s.cfg.WhatsApp.AuthPath,
			"passphrase":      passphrase,
			"session_id":      s.cfg.WhatsApp.SessionID,
			"default_number":  s.cfg.WhatsApp.DefaultNumber,
			"reconnect_delay": s.cfg.WhatsApp.ReconnectDelay.String(),
			"reinit_delay":    s.cfg.WhatsApp.ReinitDelay.String(),
			"send_timeout":    s.cfg.WhatsApp.SendTimeout.String(),
		},
		"directory": gin.H{"path": s.cfg.Directory.Path},
		"ledger":    gin.H{"path": s.cfg.Ledger.Path},
	}
}

func (s *Server) sendContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.WhatsApp.SendTimeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
