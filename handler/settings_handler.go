package handler

import (
	"buddy_sos/middleware"
	"buddy_sos/service"
	"buddy_sos/utils"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	setSvc *service.SettingsService
}

func NewSettingsHandler(setSvc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{setSvc: setSvc}
}

// Get 当前用户设置，没有就建默认
func (h *SettingsHandler) Get(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	settings, err := h.setSvc.GetOrCreate(userID)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"settings": settings})
}

// Update 部分更新设置
func (h *SettingsHandler) Update(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	var req service.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if req.QuietHoursStart != nil && !service.ValidClockTime(*req.QuietHoursStart) {
		utils.BadRequest(c, "quiet_hours_start must be HH:MM")
		return
	}
	if req.QuietHoursEnd != nil && !service.ValidClockTime(*req.QuietHoursEnd) {
		utils.BadRequest(c, "quiet_hours_end must be HH:MM")
		return
	}
	if req.SosRadiusKm != nil && *req.SosRadiusKm <= 0 {
		utils.BadRequest(c, "sos_radius_km must be positive")
		return
	}

	settings, err := h.setSvc.Update(userID, req)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"settings": settings})
}
