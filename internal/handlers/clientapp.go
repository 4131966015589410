package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SAOSTAR1501/sso-backend/internal/middleware"
	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/store"

	"github.com/gin-gonic/gin"
)

// ClientAppHandler exposes the admin registry API for client applications.
type ClientAppHandler struct {
	clients *services.ClientAppService
}

func NewClientAppHandler(clients *services.ClientAppService) *ClientAppHandler {
	return &ClientAppHandler{clients: clients}
}

// Create registers a new client application (POST /admin/client-apps). The
// plaintext secret appears in this response only.
func (h *ClientAppHandler) Create(c *gin.Context) {
	var input services.RegisterClientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "name and at least one redirect URI are required",
		})
		return
	}

	client, secret, err := h.clients.Register(c.Request.Context(), input, middleware.GetUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"client":        client,
		"client_secret": secret,
	})
}

// List returns a page of registered clients (GET /admin/client-apps).
func (h *ClientAppHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	params := store.NewPaginationParams(page, pageSize, c.Query("search"))

	clients, pagination, err := h.clients.List(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to list client applications",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clients":    clients,
		"pagination": pagination,
	})
}

// Get returns one client registration (GET /admin/client-apps/:clientID).
func (h *ClientAppHandler) Get(c *gin.Context) {
	client, err := h.clients.GetByClientID(c.Request.Context(), c.Param("clientID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client})
}

// Update applies a partial update (PUT /admin/client-apps/:clientID).
func (h *ClientAppHandler) Update(c *gin.Context) {
	var input services.UpdateClientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "Malformed update payload",
		})
		return
	}

	client, err := h.clients.Update(
		c.Request.Context(),
		c.Param("clientID"),
		input,
		middleware.GetUserID(c),
	)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client})
}

// Delete deactivates a client registration
// (DELETE /admin/client-apps/:clientID). The record is kept so in-flight
// codes and tokens fail cleanly instead of dangling.
func (h *ClientAppHandler) Delete(c *gin.Context) {
	err := h.clients.Delete(c.Request.Context(), c.Param("clientID"), middleware.GetUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Client application deactivated"})
}

// RegenerateSecret rotates a client secret
// (POST /admin/client-apps/:clientID/regenerate-secret).
func (h *ClientAppHandler) RegenerateSecret(c *gin.Context) {
	secret, err := h.clients.RegenerateSecret(
		c.Request.Context(),
		c.Param("clientID"),
		middleware.GetUserID(c),
	)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_secret": secret})
}

func (h *ClientAppHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidClient):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "Client application not found",
		})
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Operation failed",
		})
	}
}
