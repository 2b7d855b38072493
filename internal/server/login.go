package server

import (
	"encoding/base64"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"wanotify/internal/session"
)

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>WhatsApp Login</title>
  {{if .Refresh}}<meta http-equiv="refresh" content="2">{{end}}
  <style>
    body { font-family: sans-serif; text-align: center; padding-top: 4em; }
    img { border: 1px solid #ccc; padding: 8px; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
  {{if .QR}}<img src="{{.QR}}" alt="pairing QR code" width="264" height="264">{{end}}
</body>
</html>
`))

type loginView struct {
	Title   string
	Message string
	QR      template.URL
	Refresh bool
}

// handleLogin renders the pairing page. While a pairing challenge is
// pending it shows the QR code and refreshes until the session connects.
func (s *Server) handleLogin(c *gin.Context) {
	st := s.deps.Session.Status()

	var view loginView
	switch {
	case st.Ready():
		view = loginView{
			Title:   "WhatsApp Connected",
			Message: "The session is paired and ready. Visit /logout to unpair.",
		}
	case st.State == session.StateAwaitingPairing && len(st.PairingChallenge) > 0:
		dataURL, err := qrDataURL(st.PairingChallenge)
		if err != nil {
			log.Error().Err(err).Msg("login_qr_encode_failed")
			c.String(http.StatusInternalServerError, "QR encoding failed")
			return
		}
		view = loginView{
			Title:   "Scan to Pair",
			Message: "Open WhatsApp on your phone and scan the code below.",
			QR:      template.URL(dataURL),
			Refresh: true,
		}
	default:
		view = loginView{
			Title:   "Initializing",
			Message: "The session is starting up. This page refreshes automatically.",
			Refresh: true,
		}
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := loginPage.Execute(c.Writer, view); err != nil {
		log.Error().Err(err).Msg("login_page_render_failed")
	}
}

func qrDataURL(challenge []byte) (string, error) {
	png, err := qrcode.Encode(string(challenge), qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
