package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"buddy_sos/service"
	"buddy_sos/utils"

	"github.com/gin-gonic/gin"
)

// handleServiceError 业务错误到 HTTP 状态码的统一映射。
// 策略：实体不存在 404，身份不对 403，状态/规则冲突 409，
// 输入不合规 400，冷却限流 429；其余算存储故障 500。
func handleServiceError(c *gin.Context, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrNotFound):
		utils.NotFound(c, msg)
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrNotRecipient):
		utils.Forbidden(c, msg)
	case errors.Is(err, service.ErrDuplicateLink),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrAlertClosed),
		errors.Is(err, service.ErrAlreadyAccepted):
		utils.Conflict(c, msg)
	case errors.Is(err, service.ErrCooldownActive):
		utils.ErrorResponse(c, http.StatusTooManyRequests, msg)
	case errors.Is(err, service.ErrInvalidTarget),
		errors.Is(err, service.ErrInvalidRecipients),
		errors.Is(err, service.ErrInsufficientBuddies),
		errors.Is(err, service.ErrNoBuddies),
		errors.Is(err, service.ErrTooEarly),
		errors.Is(err, service.ErrNoMoreCandidates),
		errors.Is(err, service.ErrInvalidResponse),
		errors.Is(err, service.ErrCheckinNotEligible):
		utils.BadRequest(c, msg)
	default:
		utils.InternalServerError(c, msg)
	}
}

// parsePositiveInt 解析 query 里的正整数，封顶 max
func parsePositiveInt(s string, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be positive")
	}
	if n > max {
		n = max
	}
	return n, nil
}
