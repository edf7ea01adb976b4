package service

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"buddy_sos/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SosPolicy 告警策略（可由环境变量覆盖，见 config 包）
type SosPolicy struct {
	MinBuddies             int     // 创建告警要求的最少 accepted buddy 数
	CooldownSeconds        int     // 同一 owner 两次告警之间的最小间隔
	EscalateAfterMin       int     // 创建后多少分钟才允许升级
	EscalateMoreRecipients int     // 升级一次追加的接收人上限
	DefaultRadiusKm        float64 // 用户未设置时的选人半径
	AutoSelectCap          int     // 自动选人时的接收人上限
}

// DefaultSosPolicy 默认策略
func DefaultSosPolicy() SosPolicy {
	return SosPolicy{
		MinBuddies:             1,
		CooldownSeconds:        60,
		EscalateAfterMin:       1,
		EscalateMoreRecipients: 3,
		DefaultRadiusKm:        50,
		AutoSelectCap:          5,
	}
}

// SosService 告警生命周期：状态机 OPEN -> ESCALATED -> CLOSED，
// 冷却限流、升级资格判定、接收人响应，提交后触发实时推送
type SosService struct {
	db       *gorm.DB
	buddySvc *BuddyService
	rankSvc  *RankingService
	setSvc   *SettingsService
	policy   SosPolicy
	notifier SosNotifier

	// 进程内串行化点：同一 owner 的冷却检查+创建、同一 alert 的变更
	// 各自排队，关掉 check-then-act 竞态。条目不回收，规模上限是
	// 活跃用户/告警数，可接受。
	locks struct {
		mu      sync.Mutex
		byOwner map[uuid.UUID]*sync.Mutex
		byAlert map[uuid.UUID]*sync.Mutex
	}
}

func NewSosService(db *gorm.DB, policy SosPolicy) *SosService {
	s := &SosService{
		db:       db,
		buddySvc: NewBuddyService(db),
		rankSvc:  NewRankingService(db),
		setSvc:   NewSettingsService(db),
		policy:   policy,
	}
	s.locks.byOwner = make(map[uuid.UUID]*sync.Mutex)
	s.locks.byAlert = make(map[uuid.UUID]*sync.Mutex)
	return s
}

// SetNotifier 注入实时推送（可选；为 nil 时只落库不推送）
func (s *SosService) SetNotifier(n SosNotifier) {
	s.notifier = n
}

func (s *SosService) ownerLock(ownerID uuid.UUID) *sync.Mutex {
	s.locks.mu.Lock()
	defer s.locks.mu.Unlock()
	if m, ok := s.locks.byOwner[ownerID]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.locks.byOwner[ownerID] = m
	return m
}

func (s *SosService) alertLock(alertID uuid.UUID) *sync.Mutex {
	s.locks.mu.Lock()
	defer s.locks.mu.Unlock()
	if m, ok := s.locks.byAlert[alertID]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.locks.byAlert[alertID] = m
	return m
}

// Create 手动触发告警
func (s *SosService) Create(ownerID uuid.UUID, severity model.SosSeverity, explicitBuddyIDs []uuid.UUID, broadcast bool) (*model.SosAlert, error) {
	return s.createAlert(ownerID, model.SosTriggerManual, severity, explicitBuddyIDs, broadcast)
}

// CreateFromCheckin 由心情打卡触发告警：先校验打卡归属和触发条件
func (s *SosService) CreateFromCheckin(ownerID, checkinID uuid.UUID, severity model.SosSeverity, explicitBuddyIDs []uuid.UUID, broadcast bool) (*model.SosAlert, error) {
	var checkin model.MoodCheckin
	if err := s.db.Where("id = ?", checkinID).First(&checkin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: checkin not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load checkin: %w", err)
	}
	if checkin.UserID != ownerID {
		return nil, fmt.Errorf("%w: checkin does not belong to you", ErrForbidden)
	}
	if !checkin.TriggersSos() {
		return nil, fmt.Errorf("%w: need wants_company or mood score 1-2", ErrCheckinNotEligible)
	}
	return s.createAlert(ownerID, model.SosTriggerMood, severity, explicitBuddyIDs, broadcast)
}

func (s *SosService) createAlert(ownerID uuid.UUID, trigger model.SosTriggerType, severity model.SosSeverity, explicitBuddyIDs []uuid.UUID, broadcast bool) (*model.SosAlert, error) {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	// 冷却：冷却窗口内已有告警就拒绝（owner 锁内检查，避免并发双建）
	cutoff := time.Now().UTC().Add(-time.Duration(s.policy.CooldownSeconds) * time.Second)
	var recentCount int64
	if err := s.db.Model(&model.SosAlert{}).
		Where("owner_id = ? AND created_at >= ?", ownerID, cutoff).
		Count(&recentCount).Error; err != nil {
		return nil, fmt.Errorf("failed to check cooldown: %w", err)
	}
	if recentCount > 0 {
		return nil, fmt.Errorf("%w: wait %d seconds between alerts", ErrCooldownActive, s.policy.CooldownSeconds)
	}

	allPeers, err := s.buddySvc.AcceptedPeersOf(ownerID)
	if err != nil {
		return nil, err
	}
	if len(allPeers) < s.policy.MinBuddies {
		return nil, fmt.Errorf("%w: need at least %d accepted buddy/buddies", ErrInsufficientBuddies, s.policy.MinBuddies)
	}
	peerSet := make(map[uuid.UUID]bool, len(allPeers))
	for _, id := range allPeers {
		peerSet[id] = true
	}

	// 选接收人：显式指定 > 广播 > 排名自动选
	var selected []uuid.UUID
	switch {
	case len(explicitBuddyIDs) > 0:
		seen := make(map[uuid.UUID]bool, len(explicitBuddyIDs))
		for _, id := range explicitBuddyIDs {
			if !peerSet[id] {
				return nil, fmt.Errorf("%w: %s is not an accepted buddy", ErrInvalidRecipients, id)
			}
			if !seen[id] {
				seen[id] = true
				selected = append(selected, id)
			}
		}
	case broadcast:
		selected = allPeers
	default:
		radius := s.setSvc.SosRadiusFor(ownerID, s.policy.DefaultRadiusKm)
		selected, err = s.rankSvc.SelectRecipients(ownerID, s.policy.AutoSelectCap, &radius)
		if err != nil {
			return nil, err
		}
	}

	alert := &model.SosAlert{
		OwnerID:     ownerID,
		TriggerType: trigger,
		Severity:    severity,
		Status:      model.SosAlertOpen,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if createErr := tx.Create(alert).Error; createErr != nil {
			return fmt.Errorf("failed to create alert: %w", createErr)
		}
		for _, bid := range selected {
			rec := &model.SosRecipient{
				AlertID: alert.ID,
				BuddyID: bid,
				Status:  model.SosRecipientNotified,
			}
			if createErr := tx.Create(rec).Error; createErr != nil {
				return fmt.Errorf("failed to create recipient: %w", createErr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 提交之后才推送；推送失败只记日志
	s.fanOutCreated(alert, selected)
	return alert, nil
}

// Escalate 升级：无人接受且过了等待期时追加接收人，状态置 ESCALATED
func (s *SosService) Escalate(alertID, actorID uuid.UUID) (*model.SosAlert, error) {
	lock := s.alertLock(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, err := s.loadOwned(alertID, actorID)
	if err != nil {
		return nil, err
	}
	if alert.Status == model.SosAlertClosed {
		return nil, fmt.Errorf("%w: cannot escalate", ErrAlertClosed)
	}

	elapsed := time.Now().UTC().Sub(alert.CreatedAt)
	if elapsed < time.Duration(s.policy.EscalateAfterMin)*time.Minute {
		return nil, fmt.Errorf("%w: wait at least %d minute(s) after creation", ErrTooEarly, s.policy.EscalateAfterMin)
	}

	var acceptedCount int64
	if err := s.db.Model(&model.SosRecipient{}).
		Where("alert_id = ? AND status = ?", alertID, model.SosRecipientAccepted).
		Count(&acceptedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to check responses: %w", err)
	}
	if acceptedCount > 0 {
		return nil, ErrAlreadyAccepted
	}

	var existing []model.SosRecipient
	if err := s.db.Where("alert_id = ?", alertID).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}
	existingSet := make(map[uuid.UUID]bool, len(existing))
	for _, rec := range existing {
		existingSet[rec.BuddyID] = true
	}

	allPeers, err := s.buddySvc.AcceptedPeersOf(alert.OwnerID)
	if err != nil {
		return nil, err
	}
	candidates := make([]uuid.UUID, 0, len(allPeers))
	for _, id := range allPeers {
		if !existingSet[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoMoreCandidates
	}

	// 候选人按严格排名挑前 N；严格排名全被过滤掉时按枚举顺序兜底
	newBuddies := make([]uuid.UUID, 0, s.policy.EscalateMoreRecipients)
	ranked, err := s.rankSvc.RankBuddies(alert.OwnerID, 0, nil)
	if err != nil && !errors.Is(err, ErrNoBuddies) {
		return nil, err
	}
	for _, r := range ranked {
		if !existingSet[r.BuddyID] {
			newBuddies = append(newBuddies, r.BuddyID)
			if len(newBuddies) >= s.policy.EscalateMoreRecipients {
				break
			}
		}
	}
	if len(newBuddies) == 0 {
		for _, id := range candidates {
			newBuddies = append(newBuddies, id)
			if len(newBuddies) >= s.policy.EscalateMoreRecipients {
				break
			}
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, bid := range newBuddies {
			rec := &model.SosRecipient{
				AlertID: alert.ID,
				BuddyID: bid,
				Status:  model.SosRecipientNotified,
			}
			if createErr := tx.Create(rec).Error; createErr != nil {
				return fmt.Errorf("failed to append recipient: %w", createErr)
			}
		}
		if saveErr := tx.Model(&model.SosAlert{}).Where("id = ?", alert.ID).
			Update("status", model.SosAlertEscalated).Error; saveErr != nil {
			return fmt.Errorf("failed to escalate alert: %w", saveErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	alert.Status = model.SosAlertEscalated

	// 只推给新加的接收人
	s.fanOutCreated(alert, newBuddies)
	return alert, nil
}

// Close 关闭告警。重复关闭报 ErrAlertClosed（显式约定，不做静默幂等）
func (s *SosService) Close(alertID, actorID uuid.UUID) (*model.SosAlert, error) {
	lock := s.alertLock(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, err := s.loadOwned(alertID, actorID)
	if err != nil {
		return nil, err
	}
	if alert.Status == model.SosAlertClosed {
		return nil, fmt.Errorf("%w: already closed", ErrAlertClosed)
	}

	now := time.Now().UTC()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&model.SosAlert{}).Where("id = ?", alert.ID).
			Updates(map[string]interface{}{
				"status":    model.SosAlertClosed,
				"closed_at": now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close alert: %w", err)
	}
	alert.Status = model.SosAlertClosed
	alert.ClosedAt = &now

	// 推给全部接收人 + owner 自己
	if s.notifier != nil {
		recipientIDs, loadErr := s.recipientIDs(alert.ID)
		if loadErr != nil {
			log.Printf("[ERROR] Failed to load recipients for close fan-out: %v", loadErr)
			recipientIDs = nil
		}
		targets := append(recipientIDs, alert.OwnerID)
		s.notifier.SendToUsers(targets, EventSosClosed, map[string]interface{}{
			"sos_id": alert.ID,
			"status": alert.Status,
		})
	}
	return alert, nil
}

// Respond 接收人响应：同一行幂等覆盖写（buddy 在告警关闭前可以反复改主意）
func (s *SosService) Respond(alertID, buddyID uuid.UUID, status model.SosRecipientStatus, message *string, etaMinutes *int) (*model.SosRecipient, error) {
	if status != model.SosRecipientAccepted && status != model.SosRecipientDeclined {
		return nil, fmt.Errorf("%w: must be ACCEPTED or DECLINED", ErrInvalidResponse)
	}

	lock := s.alertLock(alertID)
	lock.Lock()
	defer lock.Unlock()

	var rec model.SosRecipient
	if err := s.db.Where("alert_id = ? AND buddy_id = ?", alertID, buddyID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotRecipient
		}
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	var alert model.SosAlert
	if err := s.db.Where("id = ?", alertID).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: alert not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert.Status == model.SosAlertClosed {
		return nil, fmt.Errorf("%w: cannot respond", ErrAlertClosed)
	}

	now := time.Now().UTC()
	rec.Status = status
	rec.Message = message
	rec.EtaMinutes = etaMinutes
	rec.RespondedAt = &now

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&model.SosRecipient{}).Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"status":       status,
				"message":      message,
				"eta_minutes":  etaMinutes,
				"responded_at": now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save response: %w", err)
	}

	// 只推给 owner
	if s.notifier != nil {
		var buddy model.User
		buddyName := ""
		if loadErr := s.db.Where("id = ?", buddyID).First(&buddy).Error; loadErr == nil {
			buddyName = buddy.FullName
		}
		s.notifier.SendToUser(alert.OwnerID, EventSosRecipientUpdated, map[string]interface{}{
			"sos_id":       alert.ID,
			"recipient_id": rec.ID,
			"buddy_id":     buddyID,
			"buddy_name":   buddyName,
			"status":       rec.Status,
			"message":      rec.Message,
			"eta_minutes":  rec.EtaMinutes,
		})
	}
	return &rec, nil
}

// Delete 删除告警和接收人行（owner 专用）
func (s *SosService) Delete(alertID, actorID uuid.UUID) error {
	lock := s.alertLock(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, err := s.loadOwned(alertID, actorID)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if delErr := tx.Where("alert_id = ?", alert.ID).Delete(&model.SosRecipient{}).Error; delErr != nil {
			return fmt.Errorf("failed to delete recipients: %w", delErr)
		}
		if delErr := tx.Where("id = ?", alert.ID).Delete(&model.SosAlert{}).Error; delErr != nil {
			return fmt.Errorf("failed to delete alert: %w", delErr)
		}
		return nil
	})
}

// Get owner 视角查看告警。不存在 404，非 owner 403（两者显式区分）
func (s *SosService) Get(alertID, actorID uuid.UUID) (*model.SosAlert, error) {
	return s.loadOwned(alertID, actorID)
}

// ListMine 自己的告警，新的在前
func (s *SosService) ListMine(ownerID uuid.UUID, limit int) ([]model.SosAlert, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var alerts []model.SosAlert
	err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return alerts, nil
}

// IncomingAlert buddy 收件箱条目
type IncomingAlert struct {
	AlertID     uuid.UUID                `json:"alert_id"`
	OwnerID     uuid.UUID                `json:"owner_id"`
	OwnerName   string                   `json:"owner_name"`
	TriggerType model.SosTriggerType     `json:"trigger_type"`
	Severity    model.SosSeverity        `json:"severity"`
	AlertStatus model.SosAlertStatus     `json:"alert_status"`
	CreatedAt   time.Time                `json:"created_at"`
	RecipientID uuid.UUID                `json:"recipient_id"`
	MyStatus    model.SosRecipientStatus `json:"my_status"`
	MyMessage   *string                  `json:"my_message,omitempty"`
	MyEta       *int                     `json:"my_eta_minutes,omitempty"`
	RespondedAt *time.Time               `json:"responded_at,omitempty"`
}

// IncomingForBuddy 自己作为接收人的告警列表（buddy 收件箱）
func (s *SosService) IncomingForBuddy(buddyID uuid.UUID) ([]IncomingAlert, error) {
	var rows []IncomingAlert
	err := s.db.Table("sos_recipients").
		Select(`sos_alerts.id AS alert_id,
			sos_alerts.owner_id,
			users.full_name AS owner_name,
			sos_alerts.trigger_type,
			sos_alerts.severity,
			sos_alerts.status AS alert_status,
			sos_alerts.created_at,
			sos_recipients.id AS recipient_id,
			sos_recipients.status AS my_status,
			sos_recipients.message AS my_message,
			sos_recipients.eta_minutes AS my_eta,
			sos_recipients.responded_at`).
		Joins("INNER JOIN sos_alerts ON sos_alerts.id = sos_recipients.alert_id").
		Joins("INNER JOIN users ON users.id = sos_alerts.owner_id").
		Where("sos_recipients.buddy_id = ?", buddyID).
		Order("sos_alerts.created_at DESC, sos_alerts.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming alerts: %w", err)
	}
	return rows, nil
}

// RecipientWithBuddy 接收人行附 buddy 信息
type RecipientWithBuddy struct {
	model.SosRecipient
	BuddyName  string `json:"buddy_name"`
	BuddyEmail string `json:"buddy_email"`
}

// AlertDetail 告警详情（含接收人时间线）
type AlertDetail struct {
	model.SosAlert
	Recipients []RecipientWithBuddy `json:"recipients"`
}

// Detail 组装告警详情
func (s *SosService) Detail(alert *model.SosAlert) (*AlertDetail, error) {
	var recipients []model.SosRecipient
	if err := s.db.Where("alert_id = ?", alert.ID).Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}

	buddyIDs := make([]uuid.UUID, 0, len(recipients))
	for _, rec := range recipients {
		buddyIDs = append(buddyIDs, rec.BuddyID)
	}
	userMap := make(map[uuid.UUID]model.User, len(buddyIDs))
	if len(buddyIDs) > 0 {
		var users []model.User
		if err := s.db.Where("id IN ?", buddyIDs).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("failed to load recipient users: %w", err)
		}
		for _, u := range users {
			userMap[u.ID] = u
		}
	}

	detail := &AlertDetail{SosAlert: *alert, Recipients: make([]RecipientWithBuddy, 0, len(recipients))}
	for _, rec := range recipients {
		u := userMap[rec.BuddyID]
		detail.Recipients = append(detail.Recipients, RecipientWithBuddy{
			SosRecipient: rec,
			BuddyName:    u.FullName,
			BuddyEmail:   u.Email,
		})
	}
	return detail, nil
}

func (s *SosService) loadOwned(alertID, actorID uuid.UUID) (*model.SosAlert, error) {
	var alert model.SosAlert
	if err := s.db.Where("id = ?", alertID).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: alert not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert.OwnerID != actorID {
		return nil, fmt.Errorf("%w: only the owner can do this", ErrForbidden)
	}
	return &alert, nil
}

func (s *SosService) recipientIDs(alertID uuid.UUID) ([]uuid.UUID, error) {
	var recipients []model.SosRecipient
	if err := s.db.Where("alert_id = ?", alertID).Find(&recipients).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(recipients))
	for _, rec := range recipients {
		ids = append(ids, rec.BuddyID)
	}
	return ids, nil
}

func (s *SosService) fanOutCreated(alert *model.SosAlert, targets []uuid.UUID) {
	if s.notifier == nil || len(targets) == 0 {
		return
	}
	detail, err := s.Detail(alert)
	if err != nil {
		log.Printf("[ERROR] Failed to build alert detail for fan-out: %v", err)
		return
	}
	s.notifier.SendToUsers(targets, EventSosCreated, detail)
}
