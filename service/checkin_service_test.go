package service

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCheckinCreate 测试心情打卡
//
// 测试目标：
// - 分值必须在 1-5
// - tags 以 JSON 存储
// - 触发条件：想找人陪 或 心情 <= 2
func TestCheckinCreate(t *testing.T) {
	db := newTestDB(t)
	svc := NewCheckinService(db)
	u := createTestUser(t, db, "alice", nil, nil)

	_, err := svc.Create(u.ID, 0, nil, nil, false)
	assert.Error(t, err)
	_, err = svc.Create(u.ID, 6, nil, nil, false)
	assert.Error(t, err)

	c, err := svc.Create(u.ID, 2, []string{"tired", "lonely"}, ptrString("rough day"), false)
	require.NoError(t, err)
	assert.True(t, c.TriggersSos())

	var tags []string
	require.NoError(t, json.Unmarshal(c.Tags, &tags))
	assert.Equal(t, []string{"tired", "lonely"}, tags)

	fine, err := svc.Create(u.ID, 4, nil, nil, false)
	require.NoError(t, err)
	assert.False(t, fine.TriggersSos())

	company, err := svc.Create(u.ID, 5, nil, nil, true)
	require.NoError(t, err)
	assert.True(t, company.TriggersSos())
}

// TestCheckinGet 测试单条打卡的 404 与 403 区分
func TestCheckinGet(t *testing.T) {
	db := newTestDB(t)
	svc := NewCheckinService(db)
	a := createTestUser(t, db, "alice", nil, nil)
	b := createTestUser(t, db, "bob", nil, nil)

	c, err := svc.Create(a.ID, 3, nil, nil, false)
	require.NoError(t, err)

	got, err := svc.Get(c.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	// 别人的打卡
	_, err = svc.Get(c.ID, b.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// 不存在
	_, err = svc.Get(uuid.New(), a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCheckinListMine 测试打卡历史只看自己的
func TestCheckinListMine(t *testing.T) {
	db := newTestDB(t)
	svc := NewCheckinService(db)
	a := createTestUser(t, db, "alice", nil, nil)
	b := createTestUser(t, db, "bob", nil, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.Create(a.ID, 3, nil, nil, false)
		require.NoError(t, err)
	}
	_, err := svc.Create(b.ID, 3, nil, nil, false)
	require.NoError(t, err)

	mine, err := svc.ListMine(a.ID, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}
