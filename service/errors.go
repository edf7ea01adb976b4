package service

import "errors"

// 业务错误哨兵。handler 层用 errors.Is 映射到 HTTP 状态码，
// 不在这里重试；只有存储/传输类错误才算瞬时故障。
var (
	// 通用
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// 信任链接
	ErrInvalidTarget = errors.New("invalid invite target")
	ErrDuplicateLink = errors.New("buddy link already exists")
	ErrInvalidState  = errors.New("invalid link state")
	ErrNoBuddies     = errors.New("no accepted buddies")

	// SOS 告警
	ErrCooldownActive      = errors.New("sos cooldown active")
	ErrInsufficientBuddies = errors.New("not enough accepted buddies")
	ErrInvalidRecipients   = errors.New("invalid recipient ids")
	ErrAlertClosed         = errors.New("sos alert is closed")
	ErrTooEarly            = errors.New("too early to escalate")
	ErrAlreadyAccepted     = errors.New("a buddy has already accepted")
	ErrNoMoreCandidates    = errors.New("no additional buddies available")
	ErrNotRecipient        = errors.New("not a recipient of this alert")
	ErrInvalidResponse     = errors.New("invalid response status")
	ErrCheckinNotEligible  = errors.New("checkin does not trigger sos")
)
