package handler

import (
	"net/http"

	"github.com/hoststack/license-service/internal/validator"
	"github.com/gin-gonic/gin"
)

type ValidateHandler struct {
	validator *validator.Validator
}

func NewValidateHandler(v *validator.Validator) *ValidateHandler {
	return &ValidateHandler{validator: v}
}

// The endpoint deployed products call on every licensed operation.
// Denials are returned as 200 with valid=false; the caller distinguishes
// outcomes by the body, not the status code.
func (h *ValidateHandler) Validate(c *gin.Context) {
	var req validator.Request

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, validator.Response{
			Valid: false,
			Error: "Invalid request body",
		})
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	resp := h.validator.Validate(c.Request.Context(), req)
	c.JSON(http.StatusOK, resp)
}
