package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

type Manager struct {
	Domain string
	Secure bool
	now    func() time.Time
}

func NewCookie(domain string, secure bool) *Manager {
	return &Manager{Domain: domain, Secure: secure, now: time.Now}
}

// SetPair stores both tokens as HttpOnly cookies that expire with them.
func (m *Manager) SetPair(c *gin.Context, access string, aexp time.Time, refresh string, rexp time.Time) {
	m.SetAccess(c, access, aexp)
	c.SetCookie(RefreshTokenCookie, refresh, m.maxAgeFrom(rexp), "/", m.Domain, m.Secure, true)
}

func (m *Manager) SetAccess(c *gin.Context, access string, aexp time.Time) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, access, m.maxAgeFrom(aexp), "/", m.Domain, m.Secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, "", -1, "/", m.Domain, m.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", m.Domain, m.Secure, true)
}

func (m *Manager) maxAgeFrom(exp time.Time) int {
	sec := int(exp.Sub(m.now()).Seconds())
	if sec < 0 {
		return 0
	}
	return sec
}
