package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-credential-service/internal/domain/entity"
	handlers "github.com/oksasatya/go-credential-service/internal/interface/http"
	"github.com/oksasatya/go-credential-service/internal/interface/middleware"
)

// CredentialModule wires the credential handlers into routes.
// Public: sign-up, login, refresh, logout, forgot-password, reset-password, activate
// Protected: GET /auth/me
// Admin: GET /admin/credentials/search
type CredentialModule struct {
	Handler *handlers.CredentialHandler
	Auth    middleware.Authenticator
}

func NewCredentialModule(h *handlers.CredentialHandler, auth middleware.Authenticator) *CredentialModule {
	return &CredentialModule{Handler: h, Auth: auth}
}

func (m *CredentialModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.POST("/sign-up", m.Handler.SignUp)
	auth.POST("/login", m.Handler.Login)
	auth.POST("/refresh", m.Handler.Refresh)
	auth.POST("/logout", m.Handler.Logout)
	auth.POST("/forgot-password", m.Handler.ForgotPassword)
	auth.PATCH("/reset-password", m.Handler.ResetPassword)
	auth.GET("/activate", m.Handler.Activate)
	auth.GET("/me", middleware.Auth(m.Auth), m.Handler.Me)

	admin := rg.Group("/admin")
	admin.Use(middleware.Auth(m.Auth), middleware.RequireRole(string(entity.RoleAdmin)))
	{
		admin.GET("/credentials/search", m.Handler.Search)
	}
}
