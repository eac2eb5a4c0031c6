package handler

import (
	"net/http"
	"strconv"

	"github.com/hoststack/license-service/internal/service"
	"github.com/gin-gonic/gin"
)

type LicenseHandler struct {
	service *service.LicenseService
}

func NewLicenseHandler(service *service.LicenseService) *LicenseHandler {
	return &LicenseHandler{service: service}
}

func (h *LicenseHandler) Create(c *gin.Context) {
	var req service.CreateLicenseInput

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	license, err := h.service.Create(ctx, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, license)
}

func (h *LicenseHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx := c.Request.Context()
	licenses, err := h.service.List(ctx, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, licenses)
}

func (h *LicenseHandler) Get(c *gin.Context) {
	id := c.Param("id")

	ctx := c.Request.Context()
	license, err := h.service.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if license == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
		return
	}

	c.JSON(http.StatusOK, license)
}

func (h *LicenseHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Status       *string `json:"status"`
		MaxAccounts  *int    `json:"max_accounts"`
		MaxDomains   *int    `json:"max_domains"`
		MaxDatabases *int    `json:"max_databases"`
		MaxEmails    *int    `json:"max_emails"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.MaxAccounts != nil {
		updates["max_accounts"] = *req.MaxAccounts
	}
	if req.MaxDomains != nil {
		updates["max_domains"] = *req.MaxDomains
	}
	if req.MaxDatabases != nil {
		updates["max_databases"] = *req.MaxDatabases
	}
	if req.MaxEmails != nil {
		updates["max_emails"] = *req.MaxEmails
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	ctx := c.Request.Context()
	if err := h.service.Update(ctx, id, updates); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "License updated successfully"})
}

func (h *LicenseHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	ctx := c.Request.Context()
	if err := h.service.Delete(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "License deleted successfully"})
}
