package handler

import (
	"buddy_sos/middleware"
	"buddy_sos/model"
	"buddy_sos/service"
	"buddy_sos/utils"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presSvc *service.PresenceService
}

func NewPresenceHandler(presSvc *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presSvc: presSvc}
}

// Get 当前用户在线状态（没有记录视为 OFFLINE）
func (h *PresenceHandler) Get(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	presence, err := h.presSvc.Get(userID)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"presence": presence})
}

// Update 更新在线状态
func (h *PresenceHandler) Update(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	var req struct {
		Status model.PresenceStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	switch req.Status {
	case model.PresenceAvailable, model.PresenceBusy, model.PresenceOffline:
	default:
		utils.BadRequest(c, "status must be AVAILABLE, BUSY or OFFLINE")
		return
	}

	presence, err := h.presSvc.Update(userID, req.Status)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"presence": presence})
}

// UpdateLocation 上报当前坐标
func (h *PresenceHandler) UpdateLocation(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	var req struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		utils.BadRequest(c, "coordinates out of range")
		return
	}

	if err := h.presSvc.UpdateLocation(userID, *req.Latitude, *req.Longitude); err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "location updated", nil)
}
