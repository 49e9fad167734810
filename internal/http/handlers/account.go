package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/beststore/accounts/internal/account"
	"github.com/beststore/accounts/internal/auth"
	"github.com/beststore/accounts/internal/domain/user"
	"github.com/beststore/accounts/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	Register(ctx context.Context, req user.RegisterRequest) (account.AuthResult, error)
	Login(ctx context.Context, req user.LoginRequest) (account.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password string) error
	GetProfile(ctx context.Context, claims *auth.Claims) (user.Profile, error)
	UpdateProfile(ctx context.Context, claims *auth.Claims, req user.UpdateProfileRequest) (user.Profile, error)
	UpdatePassword(ctx context.Context, claims *auth.Claims, password string) error
	ListUsers(ctx context.Context) ([]user.Profile, error)
}

type AccountHandler struct {
	svc     AccountService
	log     *slog.Logger
	timeout time.Duration
}

func NewAccountHandler(svc AccountService, log *slog.Logger) *AccountHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AccountHandler{svc: svc, log: log, timeout: 5 * time.Second}
}

type forgotPasswordRequest struct {
	Email string `json:"email" form:"email" binding:"required"`
}

// Password rules are left to the service so every caller gets the same
// 8-20 message.
type resetPasswordRequest struct {
	Token    string `json:"token" form:"token" binding:"required"`
	Password string `json:"password" form:"password"`
}

type updatePasswordRequest struct {
	Password string `json:"password" form:"password"`
}

func (h *AccountHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), h.timeout)
}

// claims returns the verified claims or answers 401 itself.
func (h *AccountHandler) claims(ctx *gin.Context) (*auth.Claims, bool) {
	claims, ok := middlewares.ClaimsFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return nil, false
	}
	return claims, true
}

func (h *AccountHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.svc.Register(cctx, req)
	if err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

func (h *AccountHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest
	if !BindAny(ctx, &req) {
		return
	}

	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.svc.Login(cctx, req)
	if err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

// ForgotPassword returns the reset token in the response body. There is no
// mail delivery behind it.
func (h *AccountHandler) ForgotPassword(ctx *gin.Context) {
	var req forgotPasswordRequest
	if !BindAny(ctx, &req) {
		return
	}

	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	token, err := h.svc.ForgotPassword(cctx, req.Email)
	if err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AccountHandler) ResetPassword(ctx *gin.Context) {
	var req resetPasswordRequest
	if !BindAny(ctx, &req) {
		return
	}

	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.svc.ResetPassword(cctx, req.Token, req.Password); err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}

func (h *AccountHandler) GetProfile(ctx *gin.Context) {
	claims, ok := h.claims(ctx)
	if !ok {
		return
	}

	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	p, err := h.svc.GetProfile(cctx, claims)
	if err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, p)
}

func (h *AccountHandler) UpdateProfile(ctx *gin.Context) {
	claims, ok := h.claims(ctx)
	if !ok {
		return
	}

	var req user.UpdateProfileRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	p, err := h.svc.UpdateProfile(cctx, claims, req)
	if err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, p)
}

func (h *AccountHandler) UpdatePassword(ctx *gin.Context) {
	claims, ok := h.claims(ctx)
	if !ok {
		return
	}

	var req updatePasswordRequest
	if !BindAny(ctx, &req) {
		return
	}

	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.svc.UpdatePassword(cctx, claims, req.Password); err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// Claims echoes the verified token claims as a flat map.
func (h *AccountHandler) Claims(ctx *gin.Context) {
	claims, ok := h.claims(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, claims.AsMap())
}

func (h *AccountHandler) AdminPing(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"message": "You are authorized"})
}

func (h *AccountHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := h.requestContext(ctx)
	defer cancel()

	users, err := h.svc.ListUsers(cctx)
	if err != nil {
		respondServiceError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, users)
}
