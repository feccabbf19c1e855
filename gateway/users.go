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

type addressRequest struct {
	Street  string `json:"street" binding:"required"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state"`
	Zip     string `json:"zip" binding:"required"`
	Country string `json:"country" binding:"required"`
}

func (r *addressRequest) address() models.Address {
	return models.Address{
		Street:  strings.TrimSpace(r.Street),
		City:    strings.TrimSpace(r.City),
		State:   strings.TrimSpace(r.State),
		Zip:     strings.TrimSpace(r.Zip),
		Country: strings.TrimSpace(r.Country),
	}
}

type profileRequest struct {
	Name     *string         `json:"name" binding:"omitempty,max=100"`
	Email    *string         `json:"email" binding:"omitempty,email"`
	Password *string         `json:"password" binding:"omitempty,min=6,max=72"`
	Address  *addressRequest `json:"address"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

func (r *profileRequest) patch() (models.UserPatch, error) {
	var patch models.UserPatch
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return patch, invalidFields(FieldError{Field: "name", Message: "must not be empty"})
		}
		patch.Name = &name
	}
	patch.Email = r.Email
	patch.Password = r.Password
	if r.Address != nil {
		addr := r.Address.address()
		patch.Address = &addr
	}
	return patch, nil
}

// @Summary List users
// @Tags users
// @Produce json
// @Success 200 {array} models.User
// @Router /api/users [get]
func (g *Gateway) listUsers(c *gin.Context) {
	users, err := g.deps.Users.ListUsers(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// @Summary Get a user
// @Tags users
// @Produce json
// @Param id path string true "user id"
// @Success 200 {object} models.User
// @Router /api/users/{id} [get]
func (g *Gateway) getUser(c *gin.Context) {
	user, err := g.deps.Users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, lookupError(err, "user"))
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Change a user's role
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "user id"
// @Success 200 {object} models.User
// @Router /api/users/{id}/role [put]
func (g *Gateway) updateUserRole(c *gin.Context) {
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	admin := currentUser(c)
	id := c.Param("id")
	role := models.Role(req.Role)
	if id == admin.ID && role != models.RoleAdmin {
		g.fail(c, badRequest("admins cannot demote themselves"))
		return
	}

	user, err := g.deps.Users.UpdateUser(c.Request.Context(), id, models.UserPatch{Role: &role})
	if err != nil {
		g.fail(c, lookupError(err, "user"))
		return
	}

	g.logger.Info("User role changed",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("admin_id", admin.ID))
	c.JSON(http.StatusOK, user)
}

// @Summary Own profile
// @Tags users
// @Produce json
// @Success 200 {object} models.User
// @Router /api/users/profile [get]
func (g *Gateway) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// @Summary Update own profile
// @Description Name, email, password and address. A new password is hashed before storage.
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} authResponse
// @Router /api/users/profile [put]
func (g *Gateway) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		g.fail(c, err)
		return
	}

	user, err := g.deps.Users.UpdateUser(c.Request.Context(), currentUser(c).ID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			g.fail(c, badRequest("email already in use"))
			return
		}
		g.fail(c, lookupError(err, "user"))
		return
	}

	g.issue(c, http.StatusOK, user)
}
