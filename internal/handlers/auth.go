package handlers

import (
	"errors"
	"net/http"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/metrics"
	"github.com/SAOSTAR1501/sso-backend/internal/middleware"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/token"
	"github.com/SAOSTAR1501/sso-backend/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// forgotPasswordMessage is returned for every forgot-password request,
// whether or not the email is registered.
const forgotPasswordMessage = "If the email address is registered, a reset code has been sent."

// AuthHandler implements first-party authentication: register, login,
// logout, token refresh, and the OTP password reset flow.
type AuthHandler struct {
	auth    *services.AuthService
	issuer  *token.Issuer
	audit   *services.AuditService
	metrics metrics.Recorder
	config  *config.Config
}

func NewAuthHandler(
	auth *services.AuthService,
	issuer *token.Issuer,
	audit *services.AuditService,
	recorder metrics.Recorder,
	cfg *config.Config,
) *AuthHandler {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &AuthHandler{
		auth:    auth,
		issuer:  issuer,
		audit:   audit,
		metrics: recorder,
		config:  cfg,
	}
}

type registerRequest struct {
	FullName    string `json:"full_name"    binding:"required"`
	Email       string `json:"email"        binding:"required,email"`
	Password    string `json:"password"     binding:"required,min=8"`
	RedirectURI string `json:"redirect_uri"`
}

// Register creates a local account and signs it in (POST /auth/register):
// the SSO session is opened and the token cookies are set exactly as in
// Login.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "full_name, email, and a password of at least 8 characters are required",
		})
		return
	}
	if !h.redirectTargetOK(c, req.RedirectURI) {
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"error":             "email_taken",
				"error_description": "Email address is already registered",
			})
			return
		}
		if errors.Is(err, services.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Registration failed",
		})
		return
	}

	h.signIn(c, http.StatusCreated, user, req.RedirectURI)
}

type loginRequest struct {
	Email       string `json:"email"    binding:"required"`
	Password    string `json:"password" binding:"required"`
	RedirectURI string `json:"redirect_uri"`
}

// Login verifies credentials, opens the SSO session, and sets the token
// cookies (POST /auth/login).
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "email and password are required",
		})
		return
	}
	if !h.redirectTargetOK(c, req.RedirectURI) {
		return
	}

	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	h.signIn(c, http.StatusOK, user, req.RedirectURI)
}

// redirectTargetOK rejects post-auth redirect targets that are not
// same-site paths. An attacker-supplied absolute URL echoed back as
// redirect_to would be an open redirector.
func (h *AuthHandler) redirectTargetOK(c *gin.Context, target string) bool {
	if target == "" || util.IsRedirectSafe(target) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             "invalid_request",
		"error_description": "redirect_uri must be a same-site path",
	})
	return false
}

// signIn issues the first-party token pair, opens the SSO session, sets
// the token cookies, and answers with the profile. redirectTo has already
// been validated and is echoed for the frontend to follow.
func (h *AuthHandler) signIn(c *gin.Context, status int, user *models.User, redirectTo string) {
	pair, err := h.issuer.IssuePair(user, "", "profile email", 0, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to issue tokens",
		})
		return
	}

	h.openSession(c, user)
	h.setAuthCookies(c, pair)

	resp := gin.H{
		"user":   userProfile(user),
		"tokens": pair,
	}
	if redirectTo != "" {
		resp["redirect_to"] = redirectTo
	}
	c.JSON(status, resp)
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_credentials",
			"error_description": "Invalid email or password",
		})
	case errors.Is(err, services.ErrUserInactive):
		c.JSON(http.StatusForbidden, gin.H{
			"error":             "account_disabled",
			"error_description": "This account has been disabled",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Login failed",
		})
	}
}

// Logout ends the SSO session and clears the token cookies
// (POST /auth/logout).
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	userID, _ := session.Get(sessionKeyUserID).(string)
	session.Clear()
	session.Options(sessions.Options{MaxAge: -1, Path: "/"})
	_ = session.Save()

	h.clearAuthCookies(c)
	h.metrics.RecordLogout()

	if h.audit != nil && userID != "" {
		h.audit.Log(c.Request.Context(), services.AuditLogEntry{
			EventType:    models.EventLogout,
			Severity:     models.SeverityInfo,
			ActorUserID:  userID,
			ActorIP:      c.ClientIP(),
			ResourceType: models.ResourceUser,
			ResourceID:   userID,
			Action:       string(models.EventLogout),
			Success:      true,
		})
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a first-party refresh token (POST /auth/refresh). The
// token is read from the cookie, falling back to the JSON body.
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw, _ := c.Cookie(middleware.CookieRefreshToken)
	if raw == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	claims, err := h.issuer.ValidateRefreshToken(raw)
	if err != nil {
		h.metrics.RecordTokenRefresh(false)
		h.clearAuthCookies(c)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_grant",
			"error_description": "Refresh token is invalid or expired",
		})
		return
	}

	user, err := h.auth.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil || !user.IsActive {
		h.metrics.RecordTokenRefresh(false)
		h.clearAuthCookies(c)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_grant",
			"error_description": "User account is no longer available",
		})
		return
	}

	pair, err := h.issuer.Rotate(user, claims, "", 0, 0)
	if err != nil {
		h.metrics.RecordTokenRefresh(false)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_grant",
			"error_description": "Refresh token was issued to a client application",
		})
		return
	}

	h.metrics.RecordTokenRefresh(true)
	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

// Me returns the authenticated user's profile (GET /auth/me). Requires a
// valid access token.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.GetUserByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "Token subject no longer exists",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userProfile(user)})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword starts the OTP reset flow (POST /auth/forgot-password).
// The response body is identical whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "email is required",
		})
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Could not process the request",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Email       string `json:"email"        binding:"required"`
	Code        string `json:"code"         binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// ResetPassword completes the OTP reset flow (POST /auth/reset-password).
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "email, code, and a new_password of at least 8 characters are required",
		})
		return
	}

	err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		if errors.Is(err, services.ErrInvalidOTP) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_otp",
				"error_description": "The code is invalid or has expired",
			})
			return
		}
		if errors.Is(err, services.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Could not reset the password",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}

// openSession starts the SSO browser session used by /oauth/authorize.
func (h *AuthHandler) openSession(c *gin.Context, user *models.User) {
	session := sessions.Default(c)
	session.Set(sessionKeyUserID, user.ID)
	session.Options(sessions.Options{
		Path:     "/",
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.IsProduction,
		SameSite: http.SameSiteLaxMode,
	})
	_ = session.Save()
}

func (h *AuthHandler) setAuthCookies(c *gin.Context, pair *token.Pair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		middleware.CookieAccessToken,
		pair.AccessToken,
		int(h.config.AccessCookieMaxAge.Seconds()),
		"/",
		h.config.CookieDomain,
		h.config.IsProduction,
		true,
	)
	c.SetCookie(
		middleware.CookieRefreshToken,
		pair.RefreshToken,
		int(h.config.RefreshCookieMaxAge.Seconds()),
		"/",
		h.config.CookieDomain,
		h.config.IsProduction,
		true,
	)
}

func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieAccessToken, "", -1, "/", h.config.CookieDomain, h.config.IsProduction, true)
	c.SetCookie(middleware.CookieRefreshToken, "", -1, "/", h.config.CookieDomain, h.config.IsProduction, true)
}

func userProfile(user *models.User) gin.H {
	return gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"full_name":      user.FullName,
		"avatar_url":     user.AvatarURL,
		"role":           user.Role,
		"auth_source":    user.AuthSource,
	}
}
