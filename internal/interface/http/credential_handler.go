package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-credential-service/internal/application"
	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/entity"
	"github.com/oksasatya/go-credential-service/internal/interface/middleware"
	"github.com/oksasatya/go-credential-service/pkg/helpers"
	"github.com/oksasatya/go-credential-service/pkg/response"
	"github.com/oksasatya/go-credential-service/pkg/validation"
)

// CredentialService is the use case surface the handler drives.
type CredentialService interface {
	Register(ctx context.Context, in application.RegisterInput) (*entity.Credential, error)
	Login(ctx context.Context, email, password string) (*entity.Credential, error)
	IssueTokens(cred *entity.Credential) (application.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, time.Time, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, email, newPassword, token string) error
	ActivateAccount(ctx context.Context, code string) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Credential, error)
	SearchCredentials(ctx context.Context, query string, size int) ([]entity.View, error)
}

type CredentialHandler struct {
	Svc     CredentialService
	Logger  *logrus.Logger
	Cookies *helpers.Manager
}

func NewCredentialHandler(svc CredentialService, logger *logrus.Logger, cookieDomain string, cookieSecure bool) *CredentialHandler {
	return &CredentialHandler{Svc: svc, Logger: logger, Cookies: helpers.NewCookie(cookieDomain, cookieSecure)}
}

type signUpRequest struct {
	FirstName  string `json:"first_name" binding:"required,max=100"`
	LastName   string `json:"last_name" binding:"required,max=100"`
	MiddleName string `json:"middle_name" binding:"max=100"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,strongpwd"`
	Phone      string `json:"phone_number" binding:"required,phone"`
	TimeCall   string `json:"time_call" binding:"max=50"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=50"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,strongpwd"`
	Token    string `json:"token" binding:"required"`
}

type searchRequest struct {
	Query string `form:"q" binding:"required,max=200"`
	Size  int    `form:"size" binding:"min=0,max=50"`
}

type tokenInfo struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

func (h *CredentialHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cred, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		MiddleName: req.MiddleName,
		Email:      req.Email,
		Password:   req.Password,
		Phone:      req.Phone,
		TimeCall:   req.TimeCall,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, cred.View(), "registration successful, check your email to activate the account", nil)
}

func (h *CredentialHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cred, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	pair, err := h.Svc.IssueTokens(cred)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.Success(c, http.StatusOK, tokenInfo{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}, "login successful", map[string]any{"access_expires_at": pair.AccessTokenExpiry, "refresh_expires_at": pair.RefreshTokenExpiry})
}

// Refresh accepts the refresh token as a bearer token or as the
// refresh_token cookie.
func (h *CredentialHandler) Refresh(c *gin.Context) {
	refresh := middleware.BearerToken(c)
	if refresh == "" {
		refresh, _ = c.Cookie(helpers.RefreshTokenCookie)
	}
	if refresh == "" {
		response.Error[any](c, http.StatusUnauthorized, "missing refresh token", response.ErrorBody{Code: "MISSING_TOKEN"})
		return
	}
	access, exp, err := h.Svc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.SetAccess(c, access, exp)
	response.Success(c, http.StatusOK, tokenInfo{AccessToken: access, TokenType: "Bearer"}, "token refreshed",
		map[string]any{"access_expires_at": exp})
}

func (h *CredentialHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, map[string]any{"logged_out": true}, "logged out", nil)
}

// ForgotPassword never returns the reset token; it only travels by mail.
func (h *CredentialHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if _, err := h.Svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "a password reset link has been sent to your email", nil)
}

func (h *CredentialHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.Svc.ResetPassword(c.Request.Context(), req.Email, req.Password, req.Token); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "password has been reset", nil)
}

func (h *CredentialHandler) Activate(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.Error[any](c, http.StatusBadRequest, "invalid payload",
			response.ErrorBody{Code: "VALIDATION_ERROR", Details: map[string]string{"code": "is required"}})
		return
	}
	if err := h.Svc.ActivateAccount(c.Request.Context(), code); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "account activated", nil)
}

func (h *CredentialHandler) Me(c *gin.Context) {
	id, err := uuid.Parse(c.GetString(middleware.CtxCredentialIDKey))
	if err != nil {
		response.Error[any](c, http.StatusUnauthorized, "invalid access token", response.ErrorBody{Code: apperror.CodeInvalidToken})
		return
	}
	cred, err := h.Svc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, cred.View(), "ok", nil)
}

func (h *CredentialHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	views, err := h.Svc.SearchCredentials(c.Request.Context(), req.Query, req.Size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, views, "ok", map[string]any{"count": len(views)})
}

func (h *CredentialHandler) badRequest(c *gin.Context, err error) {
	response.Error[any](c, http.StatusBadRequest, "invalid payload",
		response.ErrorBody{Code: "VALIDATION_ERROR", Details: validation.ToDetails(err)})
}

// fail maps a use case error to its HTTP status by kind. Infrastructure and
// unclassified failures are logged and reported without detail.
func (h *CredentialHandler) fail(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindValidation {
		h.badRequest(c, err)
		return
	}

	var ae *apperror.Error
	status := http.StatusInternalServerError
	switch kind {
	case apperror.KindConflict:
		status = http.StatusConflict
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindAuth:
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError || !errors.As(err, &ae) {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
			"ip":         middleware.ClientIP(c),
		}).Error("request failed")
		response.Error[any](c, http.StatusInternalServerError, "internal server error", response.ErrorBody{Code: "INTERNAL"})
		return
	}
	response.Error[any](c, status, ae.Message, response.ErrorBody{Code: ae.Code})
}
