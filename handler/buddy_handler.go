package handler

import (
	"buddy_sos/middleware"
	"buddy_sos/service"
	"buddy_sos/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BuddyHandler struct {
	buddySvc *service.BuddyService
	rankSvc  *service.RankingService
}

func NewBuddyHandler(buddySvc *service.BuddyService, rankSvc *service.RankingService) *BuddyHandler {
	return &BuddyHandler{buddySvc: buddySvc, rankSvc: rankSvc}
}

// Invite 发出 buddy 邀请（按 email 或 user_id 指定对方）
func (h *BuddyHandler) Invite(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	var req struct {
		BuddyEmail string     `json:"buddy_email"`
		BuddyID    *uuid.UUID `json:"buddy_id"`
		TrustLevel int        `json:"trust_level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if req.BuddyEmail == "" && req.BuddyID == nil {
		utils.BadRequest(c, "provide buddy_email or buddy_id")
		return
	}

	link, err := h.buddySvc.Invite(userID, req.BuddyEmail, req.BuddyID, req.TrustLevel)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"link": link})
}

// Accept 接受邀请
func (h *BuddyHandler) Accept(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid link id")
		return
	}

	link, err := h.buddySvc.Accept(linkID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"link": link})
}

// Block 拉黑链接（任一方可操作）
func (h *BuddyHandler) Block(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid link id")
		return
	}

	link, err := h.buddySvc.Block(linkID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"link": link})
}

// List 当前用户的链接列表（发出的 + 收到的）
func (h *BuddyHandler) List(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	links, err := h.buddySvc.ListLinks(userID)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"links": links})
}

// PendingInvites 收到的待处理邀请
func (h *BuddyHandler) PendingInvites(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	links, err := h.buddySvc.PendingInvitesFor(userID)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"invites": links})
}

// Nearby 附近 buddy 排名（严格过滤，不做兜底回退）
func (h *BuddyHandler) Nearby(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v, 50); err == nil {
			limit = n
		}
	}

	ranked, err := h.rankSvc.RankBuddies(userID, limit, nil)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"buddies": ranked})
}
