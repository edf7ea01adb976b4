package service

import (
	"fmt"
	"sync"
	"testing"

	"buddy_sos/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var userSeq int

// newTestDB 每个测试一个独立的内存库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)

	// 内存库绑定在单个连接上，多连接会各看各的空库
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.BuddyLink{},
		&model.BuddyPresence{},
		&model.UserSettings{},
		&model.MoodCheckin{},
		&model.SosAlert{},
		&model.SosRecipient{},
	))
	return db
}

// createTestUser 建用户，可选坐标
func createTestUser(t *testing.T, db *gorm.DB, name string, lat, lon *float64) *model.User {
	t.Helper()
	userSeq++
	u := &model.User{
		Email:     fmt.Sprintf("%s_%d@test.local", name, userSeq),
		FullName:  name,
		Role:      model.RoleVeteran,
		Latitude:  lat,
		Longitude: lon,
		IsActive:  true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func ptrFloat(v float64) *float64 { return &v }
func ptrString(v string) *string  { return &v }
func ptrInt(v int) *int           { return &v }

// linkAccepted 直接落一条 ACCEPTED 链接
func linkAccepted(t *testing.T, db *gorm.DB, requester, target uuid.UUID, trust int) *model.BuddyLink {
	t.Helper()
	link := &model.BuddyLink{
		RequesterID: requester,
		TargetID:    target,
		Status:      model.BuddyLinkAccepted,
		TrustLevel:  trust,
	}
	require.NoError(t, db.Create(link).Error)
	return link
}

// setPresence 写可用性
func setPresence(t *testing.T, db *gorm.DB, userID uuid.UUID, status model.PresenceStatus) {
	t.Helper()
	require.NoError(t, db.Create(&model.BuddyPresence{UserID: userID, Status: status}).Error)
}

// notifierEvent 记录一次推送
type notifierEvent struct {
	Targets []uuid.UUID
	Event   string
	Data    interface{}
}

// recordingNotifier SosNotifier 的测试替身
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (n *recordingNotifier) SendToUser(userID uuid.UUID, event string, data interface{}) {
	n.SendToUsers([]uuid.UUID{userID}, event, data)
}

func (n *recordingNotifier) SendToUsers(userIDs []uuid.UUID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{Targets: userIDs, Event: event, Data: data})
}

func (n *recordingNotifier) eventsNamed(event string) []notifierEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifierEvent
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
