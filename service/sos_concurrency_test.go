package service

import (
	"sync"
	"testing"
	"time"

	"buddy_sos/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSosRespond_Concurrent 测试同一 buddy 的并发响应
//
// 测试目标：
// - 8 个并发响应（接受/拒绝交替）全部成功
// - 落库仍然只有一行 (alert, buddy)，字段是其中某一次调用的值
//   （幂等覆盖写，不会写出重复行）
func TestSosRespond_Concurrent(t *testing.T) {
	f := newSosFixture(t, DefaultSosPolicy(), 1)

	alert, err := f.svc.Create(f.owner.ID, model.SosSeverityHigh, nil, false)
	require.NoError(t, err)

	const calls = 8
	var wg sync.WaitGroup
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := model.SosRecipientAccepted
			if i%2 == 1 {
				status = model.SosRecipientDeclined
			}
			_, errs[i] = f.svc.Respond(alert.ID, f.buddies[0].ID, status, ptrString("msg"), ptrInt(i))
		}(i)
	}
	wg.Wait()

	for i, respErr := range errs {
		assert.NoError(t, respErr, "call %d", i)
	}

	var rows []model.SosRecipient
	require.NoError(t, f.db.Where("alert_id = ? AND buddy_id = ?", alert.ID, f.buddies[0].ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Contains(t, []model.SosRecipientStatus{
		model.SosRecipientAccepted, model.SosRecipientDeclined,
	}, rows[0].Status)
	assert.NotNil(t, rows[0].RespondedAt)
}

// TestSosCreate_ConcurrentCooldown 测试并发创建下冷却检查的原子性
//
// 测试目标：
// - 同一 owner 的 6 个并发创建恰好 1 个成功，其余 5 个报 ErrCooldownActive
// - 库里只有 1 条告警（check-then-act 竞态被 owner 锁关掉，
//   不会并发双建）
func TestSosCreate_ConcurrentCooldown(t *testing.T) {
	f := newSosFixture(t, DefaultSosPolicy(), 2)

	const calls = 6
	var wg sync.WaitGroup
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(f.owner.ID, model.SosSeverityMed, nil, false)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, createErr := range errs {
		if createErr == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, createErr, ErrCooldownActive, "call %d", i)
	}
	assert.Equal(t, 1, succeeded)

	var alertCount int64
	require.NoError(t, f.db.Model(&model.SosAlert{}).Where("owner_id = ?", f.owner.ID).Count(&alertCount).Error)
	assert.Equal(t, int64(1), alertCount)
}

// TestSosEscalate_ConcurrentNoDuplicates 测试并发升级不重复追加接收人
//
// 测试目标：
// - 2 个并发升级按 alert 锁排队：先到的追加 3 人，后到的追加剩下 1 人
// - 每个 buddy 最多一行，总数是 1 + 4（绝不双加同一候选人）
func TestSosEscalate_ConcurrentNoDuplicates(t *testing.T) {
	f := newSosFixture(t, DefaultSosPolicy(), 5)

	alert, err := f.svc.Create(f.owner.ID, model.SosSeverityHigh,
		[]uuid.UUID{f.buddies[0].ID}, false)
	require.NoError(t, err)
	f.backdate(t, alert.ID, 2*time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Escalate(alert.ID, f.owner.ID)
		}(i)
	}
	wg.Wait()

	// 两次都还有候选人可加（4 个候选、每次最多 3 个），都应成功
	for i, escErr := range errs {
		assert.NoError(t, escErr, "call %d", i)
	}

	var rows []model.SosRecipient
	require.NoError(t, f.db.Where("alert_id = ?", alert.ID).Find(&rows).Error)

	seen := make(map[uuid.UUID]int, len(rows))
	for _, rec := range rows {
		seen[rec.BuddyID]++
	}
	for buddyID, n := range seen {
		assert.Equal(t, 1, n, "buddy %s has duplicate recipient rows", buddyID)
	}
	assert.Len(t, rows, 5)
}
