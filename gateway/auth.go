package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Tgsps/coffee-sub000/pkg/models"
	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const currentUserKey = "current_user"

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// requireAuth resolves the bearer token to a stored user.
func (g *Gateway) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			g.fail(c, unauthorized("not authorized, no token"))
			return
		}

		claims, err := g.deps.Tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			g.fail(c, unauthorized("not authorized, token failed"))
			return
		}

		user, err := g.deps.Users.GetUser(c.Request.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				g.fail(c, unauthorized("not authorized, user not found"))
				return
			}
			g.fail(c, err)
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

func (g *Gateway) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).IsAdmin() {
			g.fail(c, forbidden("not authorized as an admin"))
			return
		}
		c.Next()
	}
}

// currentUser is only valid behind requireAuth.
func currentUser(c *gin.Context) *models.User {
	return c.MustGet(currentUserKey).(*models.User)
}

func (g *Gateway) issue(c *gin.Context, status int, user *models.User) {
	token, err := g.deps.Tokens.Issue(user)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(status, authResponse{Token: token, User: user})
}

// @Summary Register a customer account
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} authResponse
// @Router /api/auth/register [post]
func (g *Gateway) register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	user, err := g.deps.Users.CreateUser(c.Request.Context(), &models.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: req.Password,
		Role:     models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			g.fail(c, badRequest("user already exists"))
			return
		}
		g.fail(c, err)
		return
	}

	g.logger.Info("User registered", zap.String("user_id", user.ID))
	g.issue(c, http.StatusCreated, user)
}

// @Summary Exchange credentials for a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} authResponse
// @Router /api/auth/login [post]
func (g *Gateway) login(c *gin.Context) {
	if g.deps.Limiter != nil {
		allowed, err := g.deps.Limiter.Allow(c.Request.Context(), "login:"+c.ClientIP(),
			g.config.Auth.LoginAttempts, g.config.Auth.LoginWindow)
		if err != nil {
			g.logger.Warn("Login throttle unavailable", zap.Error(err))
		} else if !allowed {
			g.fail(c, newAPIError(http.StatusTooManyRequests, "too many login attempts, try again later"))
			return
		}
	}

	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	user, err := g.deps.Users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		g.fail(c, err)
		return
	}
	if user == nil || !g.deps.Hasher.Verify(user.Password, req.Password) {
		g.fail(c, unauthorized("invalid email or password"))
		return
	}

	g.issue(c, http.StatusOK, user)
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} models.User
// @Router /api/auth/me [get]
func (g *Gateway) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}
