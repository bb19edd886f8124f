package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/database"
	errprocess "festival_chat_service/pkg/err"
)

// fakeRoomStore 以 mutex 模擬列鎖語意的 in-memory RoomRepository：
// 容量檢查到 membership 寫入為一個臨界區，跟 FOR UPDATE 同樣的保證
type fakeRoomStore struct {
	mu      sync.Mutex
	rooms   map[string]*domain.Room
	members map[string]map[string]*domain.RoomMembership
	events  map[string]*domain.Event
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{
		rooms:   map[string]*domain.Room{},
		members: map[string]map[string]*domain.RoomMembership{},
		events:  map[string]*domain.Event{},
	}
}

func (f *fakeRoomStore) FindEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eventID]
	if !ok {
		return nil, errprocess.NotFound("event not found")
	}
	return e, nil
}

func (f *fakeRoomStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.RoomID] = room
	f.members[room.RoomID] = map[string]*domain.RoomMembership{}
	return nil
}

func (f *fakeRoomStore) FindRoomByID(ctx context.Context, roomID string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, errprocess.NotFound("room not found")
	}
	return room, nil
}

func (f *fakeRoomStore) AddMemberLocked(ctx context.Context, roomID, userID string, nickname repository.NicknameFunc) (*domain.RoomMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[roomID]
	if !ok {
		return nil, errprocess.NotFound("room not found")
	}
	if _, joined := f.members[roomID][userID]; joined {
		return nil, errprocess.Conflict("already joined this room")
	}
	if len(f.members[roomID]) >= room.MaxParticipants {
		return nil, errprocess.Conflict(
			fmt.Sprintf("room is full (max %d participants)", room.MaxParticipants))
	}

	nick, err := nickname(ctx)
	if err != nil {
		return nil, err
	}
	m := &domain.RoomMembership{RoomID: roomID, UserID: userID, Nickname: nick, LastReadAt: time.Now()}
	f.members[roomID][userID] = m
	room.ParticipantCount = len(f.members[roomID])
	return m, nil
}

func (f *fakeRoomStore) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[roomID][userID]; !ok {
		return false, nil
	}
	delete(f.members[roomID], userID)
	return true, nil
}

func (f *fakeRoomStore) FindMembership(ctx context.Context, roomID, userID string) (*domain.RoomMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[roomID][userID]
	if !ok {
		return nil, errprocess.NotFound("membership not found")
	}
	return m, nil
}

func (f *fakeRoomStore) UpdateLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[roomID][userID]; ok {
		m.LastReadAt = at
	}
	return nil
}

func (f *fakeRoomStore) DeleteRooms(ctx context.Context, roomIDs []string) (int64, error) {
	return 0, nil
}

func (f *fakeRoomStore) FilterExistingRoomIDs(ctx context.Context, roomIDs []string) ([]string, error) {
	return nil, nil
}

func (f *fakeRoomStore) BulkUpsertCounters(ctx context.Context, deltas []domain.RoomCounterDelta) error {
	return nil
}

func (f *fakeRoomStore) DeleteMembershipsByRoomIDs(ctx context.Context, roomIDs []string) (int64, error) {
	return 0, nil
}

func (f *fakeRoomStore) FindEmptyRoomIDs(ctx context.Context, createdBefore time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeRoomStore) FindInactiveRoomIDs(ctx context.Context, lastMessageBefore time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeRoomStore) FindRoomIDsOfEndedEvents(ctx context.Context, now time.Time) ([]string, error) {
	return nil, nil
}

func newRoomFixture(t *testing.T, maxParticipants int) (*RoomUseCase, *fakeRoomStore, repository.RoomCounterCache, repository.LocationTokenRegistry) {
	kv := database.NewMemoryKeyValueStore()
	cache := repository.NewRoomCounterCache(kv, 3355)
	tokens := repository.NewLocationTokenRegistry(kv, 15*time.Minute)

	store := newFakeRoomStore()
	store.events["event-1"] = testEvent
	store.CreateRoom(context.Background(), &domain.Room{
		RoomID:          "room-1",
		EventID:         "event-1",
		OwnerID:         "owner",
		Title:           "main stage",
		MaxParticipants: maxParticipants,
		CreatedAt:       time.Now(),
	})

	pubsub := new(MockPubSub)
	pubsub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	uc := NewRoomUseCase(store, cache, NewAdmissionUseCase(tokens, store), pubsub)
	return uc, store, cache, tokens
}

func issueToken(t *testing.T, tokens repository.LocationTokenRegistry, userID string) {
	t.Helper()
	err := tokens.Issue(context.Background(), domain.LocationToken{
		UserID:     userID,
		EventID:    "event-1",
		Location:   nearPoint,
		ReportedAt: time.Now().UnixMilli(),
	})
	assert.NoError(t, err)
}

// 測試沒有 geofence token 的 join 被拒
func TestRoomUseCase_JoinRequiresToken(t *testing.T) {
	ctx := context.Background()
	uc, _, _, _ := newRoomFixture(t, 10)

	_, err := uc.JoinRoom(ctx, "room-1", "user-1")
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))
}

// 測試併發 join 超賣防護：容量 20、25 人同時搶，
// 正好 20 個成功、5 個吃到 room is full
func TestRoomUseCase_ConcurrentJoinCapacity(t *testing.T) {
	ctx := context.Background()
	const capacity = 20
	const contenders = 25

	uc, store, _, tokens := newRoomFixture(t, capacity)

	var wg sync.WaitGroup
	results := make([]error, contenders)
	nicknames := make([]string, contenders)

	for i := 0; i < contenders; i++ {
		userID := fmt.Sprintf("user-%d", i)
		issueToken(t, tokens, userID)
	}

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := uc.JoinRoom(ctx, "room-1", fmt.Sprintf("user-%d", i))
			results[i] = err
			if m != nil {
				nicknames[i] = m.Nickname
			}
		}(i)
	}
	wg.Wait()

	var joined, rejected int
	seen := map[string]bool{}
	for i := 0; i < contenders; i++ {
		if results[i] == nil {
			joined++
			// 成功的 join 都拿到不重複的暱稱
			assert.NotEmpty(t, nicknames[i])
			assert.False(t, seen[nicknames[i]], "duplicate nickname %s", nicknames[i])
			seen[nicknames[i]] = true
		} else {
			rejected++
			assert.True(t, errprocess.Is(results[i], errprocess.KindConflict))
		}
	}
	assert.Equal(t, capacity, joined)
	assert.Equal(t, contenders-capacity, rejected)
	assert.Len(t, store.members["room-1"], capacity)
}

// 測試被拒的 join 不消耗暱稱序號：滿房後的嘗試失敗，
// 下一個成功 join 的序號仍然連續
func TestRoomUseCase_RejectedJoinBurnsNoNickname(t *testing.T) {
	ctx := context.Background()
	uc, _, _, tokens := newRoomFixture(t, 1)

	issueToken(t, tokens, "user-1")
	issueToken(t, tokens, "user-2")

	m1, err := uc.JoinRoom(ctx, "room-1", "user-1")
	assert.NoError(t, err)
	assert.Equal(t, "#3355", m1.Nickname)

	_, err = uc.JoinRoom(ctx, "room-1", "user-2")
	assert.True(t, errprocess.Is(err, errprocess.KindConflict))

	// user-1 離開空出位子，user-2 拿到 #6710 而不是 #10065
	assert.NoError(t, uc.LeaveRoom(ctx, "room-1", "user-1"))
	m2, err := uc.JoinRoom(ctx, "room-1", "user-2")
	assert.NoError(t, err)
	assert.Equal(t, "#6710", m2.Nickname)
}

// 測試重覆 join 回 Conflict
func TestRoomUseCase_DuplicateJoin(t *testing.T) {
	ctx := context.Background()
	uc, _, _, tokens := newRoomFixture(t, 10)

	issueToken(t, tokens, "user-1")

	_, err := uc.JoinRoom(ctx, "room-1", "user-1")
	assert.NoError(t, err)
	_, err = uc.JoinRoom(ctx, "room-1", "user-1")
	assert.True(t, errprocess.Is(err, errprocess.KindConflict))
}

// 測試斷線與明確離開的差別：斷線保留 membership，
// 重覆 leave 是 no-op
func TestRoomUseCase_DisconnectKeepsMembership(t *testing.T) {
	ctx := context.Background()
	uc, store, cache, tokens := newRoomFixture(t, 10)

	issueToken(t, tokens, "user-1")
	_, err := uc.JoinRoom(ctx, "room-1", "user-1")
	assert.NoError(t, err)

	live, _ := cache.LiveCount(ctx, "room-1")
	assert.EqualValues(t, 1, live)

	// 斷線：即時在線歸零，membership 還在
	assert.NoError(t, uc.Disconnect(ctx, "room-1", "user-1"))
	live, _ = cache.LiveCount(ctx, "room-1")
	assert.EqualValues(t, 0, live)
	_, ok := store.members["room-1"]["user-1"]
	assert.True(t, ok)

	// 明確離開：membership 刪除；再 leave 一次不報錯
	assert.NoError(t, uc.LeaveRoom(ctx, "room-1", "user-1"))
	_, ok = store.members["room-1"]["user-1"]
	assert.False(t, ok)
	assert.NoError(t, uc.LeaveRoom(ctx, "room-1", "user-1"))
}

// 測試建房：房主有 token 才能建，建好後自動入房
func TestRoomUseCase_CreateRoom(t *testing.T) {
	ctx := context.Background()
	uc, store, _, tokens := newRoomFixture(t, 10)

	_, err := uc.CreateRoom(ctx, "event-1", "creator", "second stage", 50, 1.0, nearPoint)
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))

	issueToken(t, tokens, "creator")
	room, err := uc.CreateRoom(ctx, "event-1", "creator", "second stage", 50, 1.0, nearPoint)
	assert.NoError(t, err)
	assert.NotEmpty(t, room.RoomID)

	_, ok := store.members[room.RoomID]["creator"]
	assert.True(t, ok)
}
