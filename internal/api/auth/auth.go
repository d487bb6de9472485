package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"todonest/internal/model"
	"todonest/internal/pkg/metrics"
	"todonest/internal/pkg/notify"
	"todonest/internal/pkg/otp"
	"todonest/internal/pkg/password"
	"todonest/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// ErrUserNotFound 表示邮箱没有对应的用户。
var ErrUserNotFound = errors.New("user not found")

// UserStore 用户持久化接口。
type UserStore interface {
	FindByEmail(email string) (*model.User, error)
	Create(user *model.User) error
	Save(user *model.User) error
}

// Handler 提供注册、登录、验证码与账号管理接口。
type Handler struct {
	store     UserStore
	tokens    *token.Issuer
	mailer    notify.Notifier
	otpTTL    time.Duration
	otpLength int
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(store UserStore, tokens *token.Issuer, mailer notify.Notifier, otpTTL time.Duration, otpLength int, logger *slog.Logger) *Handler {
	if otpTTL <= 0 {
		otpTTL = otp.DefaultTTL
	}
	if otpLength <= 0 {
		otpLength = otp.DefaultLength
	}
	return &Handler{
		store:     store,
		tokens:    tokens,
		mailer:    mailer,
		otpTTL:    otpTTL,
		otpLength: otpLength,
		logger:    logger,
	}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Password  string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type verifyOtpRequest struct {
	Email string `json:"email" binding:"required,email"`
	Otp   string `json:"otp" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Otp         string `json:"otp" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type updateMeRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  *string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Register 创建新用户并发送验证邮件。
//
// 邮箱去除首尾空白后原样存储，查重区分大小写。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)

	if _, err := h.store.FindByEmail(email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
		return
	} else if !errors.Is(err, ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := &model.User{
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Password:  hash,
	}
	if err := h.store.Create(user); err != nil {
		if h.logger != nil {
			h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	if err := h.issueOtp(c, user, notify.TemplateVerifyOtp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send verification failed"})
		return
	}

	metrics.UserRegisteredTotal.Inc()
	if h.logger != nil {
		h.logger.Info("user registered", slog.String("email", email))
	}
	c.JSON(http.StatusCreated, user)
}

// Login 校验凭证并签发令牌对。
//
// 密码校验在验证状态检查之前：密码错误永远返回 401，
// 只有凭证正确但邮箱未验证时才返回 403。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)

	user, err := h.store.FindByEmail(email)
	if err != nil {
		metrics.LoginFailureTotal.Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !password.Verify(req.Password, user.Password) {
		metrics.LoginFailureTotal.Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !user.IsVerified {
		metrics.LoginFailureTotal.Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "email not verified"})
		return
	}

	access, refresh, err := h.tokens.Pair(user.Email)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	metrics.LoginSuccessTotal.Inc()
	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("email", email))
	}
	c.JSON(http.StatusOK, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

// Refresh 用 refresh 令牌换取新的令牌对。
//
// access 令牌在这里一律无效（kind 不符），与其他校验失败一样返回 401。
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email, err := h.tokens.Verify(req.RefreshToken, token.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := h.store.FindByEmail(email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	access, refresh, err := h.tokens.Pair(user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	c.JSON(http.StatusOK, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

// VerifyOtp 校验注册验证码并激活账号。
func (h *Handler) VerifyOtp(c *gin.Context) {
	var req verifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)

	user, err := h.store.FindByEmail(email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.IsVerified {
		c.JSON(http.StatusOK, gin.H{"message": "email already verified"})
		return
	}

	// 错误码与过期码返回同一消息，不向调用方泄露差别。
	if !user.HasPendingOtp() || !otp.Valid(user.OtpCode, user.OtpCreatedAt, strings.TrimSpace(req.Otp), h.otpTTL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired otp"})
		return
	}

	user.IsVerified = true
	user.ClearOtp()
	if err := h.store.Save(user); err != nil {
		if h.logger != nil {
			h.logger.Error("verify failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify failed"})
		return
	}

	metrics.UserVerifiedTotal.Inc()
	if h.logger != nil {
		h.logger.Info("email verified", slog.String("email", email))
	}
	c.JSON(http.StatusOK, gin.H{"message": "email verified successfully"})
}

// ResendOtp 重新发送注册验证码，旧码随之作废。
func (h *Handler) ResendOtp(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)

	user, err := h.store.FindByEmail(email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.IsVerified {
		c.JSON(http.StatusOK, gin.H{"message": "email already verified"})
		return
	}

	if err := h.issueOtp(c, user, notify.TemplateVerifyOtp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send verification failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("verification otp resent", slog.String("email", email))
	}
	c.JSON(http.StatusOK, gin.H{"message": "otp sent"})
}

// ChangePassword 已登录用户修改密码。
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if !password.Verify(req.OldPassword, user.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "incorrect old password"})
		return
	}

	hash, err := password.Hash(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	user.Password = hash
	if err := h.store.Save(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update password failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("password changed", slog.String("email", user.Email))
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}

// ForgotPassword 发起密码重置。
//
// 无论邮箱是否存在都返回同一响应，避免暴露账号是否注册。
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)

	user, err := h.store.FindByEmail(email)
	if err == nil {
		if err := h.issueOtp(c, user, notify.TemplateResetOtp); err != nil && h.logger != nil {
			h.logger.Warn("issue reset otp failed", slog.String("email", email), slog.String("error", err.Error()))
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "if the email exists, an otp has been sent"})
}

// ResetPassword 用重置验证码设置新密码。
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)

	user, err := h.store.FindByEmail(email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	if !user.HasPendingOtp() || !otp.Valid(user.OtpCode, user.OtpCreatedAt, strings.TrimSpace(req.Otp), h.otpTTL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired otp"})
		return
	}

	hash, err := password.Hash(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	user.Password = hash
	user.ClearOtp()
	if err := h.store.Save(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset password failed"})
		return
	}

	if h.mailer != nil {
		if err := h.mailer.Send(c.Request.Context(), user.Email, "Password Changed", notify.TemplatePasswordDone, map[string]string{
			"first_name": user.FirstName,
		}); err != nil && h.logger != nil {
			h.logger.Warn("send password notice failed", slog.String("email", email), slog.String("error", err.Error()))
		}
	}

	if h.logger != nil {
		h.logger.Info("password reset", slog.String("email", email))
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset successfully"})
}

// Me 返回当前用户信息。
func (h *Handler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe 更新当前用户资料（仅提供的字段生效）。
func (h *Handler) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
			return
		}
		hash, err := password.Hash(*req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		user.Password = hash
	}
	if err := h.store.Save(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// issueOtp 生成新验证码、覆盖旧码并投递邮件。
func (h *Handler) issueOtp(c *gin.Context, user *model.User, template string) error {
	code, err := otp.Generate(h.otpLength)
	if err != nil {
		return err
	}
	user.SetOtp(code, time.Now())
	if err := h.store.Save(user); err != nil {
		if h.logger != nil {
			h.logger.Error("save otp failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		}
		return err
	}

	metrics.OtpIssuedTotal.Inc()

	if h.mailer == nil {
		return errors.New("email notifier not configured")
	}
	subject := "Verify your email"
	if template == notify.TemplateResetOtp {
		subject = "Reset your password"
	}
	if err := h.mailer.Send(c.Request.Context(), user.Email, subject, template, map[string]string{
		"first_name": user.FirstName,
		"code":       code,
	}); err != nil {
		if h.logger != nil {
			h.logger.Warn("send otp email failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		}
		return err
	}
	return nil
}

// currentUser 从上下文取出 AuthMiddleware 写入的用户。
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, ok := v.(*model.User)
	if !ok {
		return nil
	}
	return user
}
