package handler

import (
	"buddy_sos/middleware"
	"buddy_sos/service"
	"buddy_sos/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CheckinHandler struct {
	checkinSvc *service.CheckinService
}

func NewCheckinHandler(checkinSvc *service.CheckinService) *CheckinHandler {
	return &CheckinHandler{checkinSvc: checkinSvc}
}

// Create 心情打卡
func (h *CheckinHandler) Create(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	var req struct {
		MoodScore    int      `json:"mood_score" binding:"required"`
		Tags         []string `json:"tags"`
		Note         *string  `json:"note"`
		WantsCompany bool     `json:"wants_company"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if req.MoodScore < 1 || req.MoodScore > 5 {
		utils.BadRequest(c, "mood_score must be between 1 and 5")
		return
	}

	checkin, err := h.checkinSvc.Create(userID, req.MoodScore, req.Tags, req.Note, req.WantsCompany)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"checkin": checkin, "triggers_sos": checkin.TriggersSos()})
}

// Get 查看单条打卡
func (h *CheckinHandler) Get(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	checkinID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid checkin id")
		return
	}

	checkin, err := h.checkinSvc.Get(checkinID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"checkin": checkin})
}

// ListMine 自己的打卡历史
func (h *CheckinHandler) ListMine(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v, 100); err == nil {
			limit = n
		}
	}

	checkins, err := h.checkinSvc.ListMine(userID, limit)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"checkins": checkins})
}
