package handler

import (
	"buddy_sos/middleware"
	"buddy_sos/model"
	"buddy_sos/service"
	"buddy_sos/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SosHandler struct {
	sosSvc *service.SosService
}

func NewSosHandler(sosSvc *service.SosService) *SosHandler {
	return &SosHandler{sosSvc: sosSvc}
}

// sosCreateRequest 创建告警载荷。buddy_ids 指定则只发给这些人（必须已 accepted）；
// broadcast 发给全部；都不给则按排名自动选
type sosCreateRequest struct {
	Severity  model.SosSeverity `json:"severity"`
	BuddyIDs  []uuid.UUID       `json:"buddy_ids"`
	Broadcast bool              `json:"broadcast"`
}

func normalizeSeverity(s model.SosSeverity) (model.SosSeverity, bool) {
	switch s {
	case model.SosSeverityLow, model.SosSeverityMed, model.SosSeverityHigh:
		return s, true
	case "":
		return model.SosSeverityMed, true
	default:
		return "", false
	}
}

// Create 手动创建 SOS
func (h *SosHandler) Create(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	var req sosCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	severity, ok := normalizeSeverity(req.Severity)
	if !ok {
		utils.BadRequest(c, "severity must be LOW, MED or HIGH")
		return
	}

	alert, err := h.sosSvc.Create(userID, severity, req.BuddyIDs, req.Broadcast)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	h.respondDetail(c, alert)
}

// CreateFromCheckin 由心情打卡触发 SOS
func (h *SosHandler) CreateFromCheckin(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	checkinID, err := uuid.Parse(c.Param("checkin_id"))
	if err != nil {
		utils.BadRequest(c, "invalid checkin id")
		return
	}

	var req sosCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.BadRequest(c, err.Error())
		return
	}
	severity, ok := normalizeSeverity(req.Severity)
	if !ok {
		utils.BadRequest(c, "severity must be LOW, MED or HIGH")
		return
	}

	alert, err := h.sosSvc.CreateFromCheckin(userID, checkinID, severity, req.BuddyIDs, req.Broadcast)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	h.respondDetail(c, alert)
}

// ListMine 自己的告警列表
func (h *SosHandler) ListMine(c *gin.Context) {
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

	alerts, err := h.sosSvc.ListMine(userID, limit)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}

	details := make([]*service.AlertDetail, 0, len(alerts))
	for i := range alerts {
		detail, detailErr := h.sosSvc.Detail(&alerts[i])
		if detailErr != nil {
			utils.InternalServerError(c, detailErr.Error())
			return
		}
		details = append(details, detail)
	}
	utils.SuccessResponse(c, gin.H{"alerts": details})
}

// Incoming buddy 收件箱：自己作为接收人的告警
func (h *SosHandler) Incoming(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	alerts, err := h.sosSvc.IncomingForBuddy(userID)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"alerts": alerts})
}

// Get owner 查看单条告警时间线
func (h *SosHandler) Get(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid alert id")
		return
	}

	alert, err := h.sosSvc.Get(alertID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	h.respondDetail(c, alert)
}

// Escalate 升级告警
func (h *SosHandler) Escalate(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid alert id")
		return
	}

	alert, err := h.sosSvc.Escalate(alertID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	h.respondDetail(c, alert)
}

// Close 关闭告警
func (h *SosHandler) Close(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid alert id")
		return
	}

	alert, err := h.sosSvc.Close(alertID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	h.respondDetail(c, alert)
}

// Respond buddy 响应告警（ACCEPTED/DECLINED，可带留言和 ETA）
func (h *SosHandler) Respond(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid alert id")
		return
	}

	var req struct {
		Status     model.SosRecipientStatus `json:"status" binding:"required"`
		Message    *string                  `json:"message"`
		EtaMinutes *int                     `json:"eta_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if req.Status != model.SosRecipientAccepted && req.Status != model.SosRecipientDeclined {
		utils.BadRequest(c, "status must be ACCEPTED or DECLINED")
		return
	}

	rec, err := h.sosSvc.Respond(alertID, userID, req.Status, req.Message, req.EtaMinutes)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"recipient": rec})
}

// Delete 删除告警
func (h *SosHandler) Delete(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid alert id")
		return
	}

	if err := h.sosSvc.Delete(alertID, userID); err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "alert deleted", nil)
}

func (h *SosHandler) respondDetail(c *gin.Context, alert *model.SosAlert) {
	detail, err := h.sosSvc.Detail(alert)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, gin.H{"alert": detail})
}
