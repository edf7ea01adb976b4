package service

import (
	"errors"
	"fmt"

	"buddy_sos/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BuddyService struct {
	db *gorm.DB
}

func NewBuddyService(db *gorm.DB) *BuddyService {
	return &BuddyService{db: db}
}

// Invite 创建邀请（PENDING）。目标可用 email 或 user_id 指定。
// 无序对 {requester, target} 双向查重，重复时报文区分已有状态。
func (s *BuddyService) Invite(requesterID uuid.UUID, targetEmail string, targetID *uuid.UUID, trustLevel int) (*model.BuddyLink, error) {
	if trustLevel < 1 || trustLevel > 5 {
		trustLevel = 3
	}

	var target model.User
	var err error
	if targetEmail != "" {
		err = s.db.Where("email = ?", targetEmail).First(&target).Error
	} else if targetID != nil {
		err = s.db.Where("id = ?", *targetID).First(&target).Error
	} else {
		return nil, fmt.Errorf("%w: provide target email or id", ErrInvalidTarget)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user not found", ErrInvalidTarget)
		}
		return nil, fmt.Errorf("failed to look up target: %w", err)
	}

	if target.ID == requesterID {
		return nil, fmt.Errorf("%w: cannot invite yourself", ErrInvalidTarget)
	}

	var link *model.BuddyLink
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 双向检查已有链接
		var existing model.BuddyLink
		findErr := tx.Where(
			"(requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?)",
			requesterID, target.ID, target.ID, requesterID,
		).First(&existing).Error
		if findErr == nil {
			switch existing.Status {
			case model.BuddyLinkBlocked:
				return fmt.Errorf("%w: this connection has been blocked", ErrDuplicateLink)
			case model.BuddyLinkAccepted:
				return fmt.Errorf("%w: already connected with this user", ErrDuplicateLink)
			default:
				return fmt.Errorf("%w: invite already pending", ErrDuplicateLink)
			}
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing link: %w", findErr)
		}

		link = &model.BuddyLink{
			RequesterID: requesterID,
			TargetID:    target.ID,
			Status:      model.BuddyLinkPending,
			TrustLevel:  trustLevel,
		}
		if createErr := tx.Create(link).Error; createErr != nil {
			return fmt.Errorf("failed to create buddy link: %w", createErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Accept 被邀请方接受邀请：只有 target 能接受，且必须处于 PENDING
func (s *BuddyService) Accept(linkID, actorID uuid.UUID) (*model.BuddyLink, error) {
	var link model.BuddyLink
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if findErr := tx.Where("id = ?", linkID).First(&link).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: buddy link not found", ErrNotFound)
			}
			return fmt.Errorf("failed to load buddy link: %w", findErr)
		}
		if link.TargetID != actorID {
			return fmt.Errorf("%w: only the invited user can accept", ErrForbidden)
		}
		if link.Status != model.BuddyLinkPending {
			return fmt.Errorf("%w: cannot accept link with status %s", ErrInvalidState, link.Status)
		}

		link.Status = model.BuddyLinkAccepted
		if saveErr := tx.Model(&model.BuddyLink{}).Where("id = ?", link.ID).
			Update("status", model.BuddyLinkAccepted).Error; saveErr != nil {
			return fmt.Errorf("failed to accept buddy link: %w", saveErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Block 任一方拉黑：任何非终态都可进入 BLOCKED；已 BLOCKED 幂等返回
func (s *BuddyService) Block(linkID, actorID uuid.UUID) (*model.BuddyLink, error) {
	var link model.BuddyLink
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if findErr := tx.Where("id = ?", linkID).First(&link).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: buddy link not found", ErrNotFound)
			}
			return fmt.Errorf("failed to load buddy link: %w", findErr)
		}
		if !link.Involves(actorID) {
			return fmt.Errorf("%w: only requester or target can block this link", ErrForbidden)
		}
		if link.Status == model.BuddyLinkBlocked {
			return nil // 已经是终态
		}

		link.Status = model.BuddyLinkBlocked
		if saveErr := tx.Model(&model.BuddyLink{}).Where("id = ?", link.ID).
			Update("status", model.BuddyLinkBlocked).Error; saveErr != nil {
			return fmt.Errorf("failed to block buddy link: %w", saveErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// AcceptedPeersOf 对称视图：双向任一方向 ACCEPTED 即互为 buddy。
// 返回顺序按链接创建时间，保证选人结果可复现。
func (s *BuddyService) AcceptedPeersOf(userID uuid.UUID) ([]uuid.UUID, error) {
	links, err := s.acceptedLinksOf(userID)
	if err != nil {
		return nil, err
	}
	peers := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		peers = append(peers, l.OtherSide(userID))
	}
	return peers, nil
}

// AcceptedTrustOf 对称视图附带信任等级 map[peerID]trust
func (s *BuddyService) AcceptedTrustOf(userID uuid.UUID) (map[uuid.UUID]int, error) {
	links, err := s.acceptedLinksOf(userID)
	if err != nil {
		return nil, err
	}
	trust := make(map[uuid.UUID]int, len(links))
	for _, l := range links {
		trust[l.OtherSide(userID)] = l.TrustLevel
	}
	return trust, nil
}

func (s *BuddyService) acceptedLinksOf(userID uuid.UUID) ([]model.BuddyLink, error) {
	var links []model.BuddyLink
	err := s.db.Where("(requester_id = ? OR target_id = ?) AND status = ?",
		userID, userID, model.BuddyLinkAccepted).
		Order("created_at ASC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query accepted links: %w", err)
	}
	return links, nil
}

// ListLinks 当前用户视角的链接列表：
// 自己发出的 PENDING/ACCEPTED + 收到的 PENDING 邀请 + 作为 target 的 ACCEPTED
func (s *BuddyService) ListLinks(userID uuid.UUID) ([]model.BuddyLink, error) {
	var links []model.BuddyLink
	err := s.db.Where("(requester_id = ? OR target_id = ?) AND status IN ?",
		userID, userID, []model.BuddyLinkStatus{model.BuddyLinkPending, model.BuddyLinkAccepted}).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query buddy links: %w", err)
	}
	return links, nil
}

// PendingInvitesFor 收到的待处理邀请
func (s *BuddyService) PendingInvitesFor(userID uuid.UUID) ([]model.BuddyLink, error) {
	var links []model.BuddyLink
	err := s.db.Where("target_id = ? AND status = ?", userID, model.BuddyLinkPending).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query pending invites: %w", err)
	}
	return links, nil
}
