package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"festival_chat_service/internal/chat/domain"
	errprocess "festival_chat_service/pkg/err"
)

// NicknameFunc 在容量檢查通過後、membership 寫入前取得暱稱。
// 放在交易內呼叫，讓被拒絕的 join 不會燒掉序號。
type NicknameFunc func(ctx context.Context) (string, error)

// RoomRepository definition durable room store
type RoomRepository interface {
	FindEvent(ctx context.Context, eventID string) (*domain.Event, error)

	CreateRoom(ctx context.Context, room *domain.Room) error
	FindRoomByID(ctx context.Context, roomID string) (*domain.Room, error)
	DeleteRooms(ctx context.Context, roomIDs []string) (int64, error)
	// FilterExistingRoomIDs 回傳 durable store 中仍存在的 id 子集
	FilterExistingRoomIDs(ctx context.Context, roomIDs []string) ([]string, error)
	// BulkUpsertCounters 單一語句折入快取差額：participant_count 無條件覆寫，
	// last_message_at 僅在較新時覆寫（逐列條件式，非逐列 round trip）
	BulkUpsertCounters(ctx context.Context, deltas []domain.RoomCounterDelta) error

	// AddMemberLocked 房間列悲觀鎖內做容量檢查加 membership 寫入，
	// 防止兩個併發 join 同時觀察到「還有位子」
	AddMemberLocked(ctx context.Context, roomID, userID string, nickname NicknameFunc) (*domain.RoomMembership, error)
	RemoveMember(ctx context.Context, roomID, userID string) (bool, error)
	FindMembership(ctx context.Context, roomID, userID string) (*domain.RoomMembership, error)
	UpdateLastRead(ctx context.Context, roomID, userID string, at time.Time) error
	DeleteMembershipsByRoomIDs(ctx context.Context, roomIDs []string) (int64, error)

	FindEmptyRoomIDs(ctx context.Context, createdBefore time.Time) ([]string, error)
	FindInactiveRoomIDs(ctx context.Context, lastMessageBefore time.Time) ([]string, error)
	FindRoomIDsOfEndedEvents(ctx context.Context, now time.Time) ([]string, error)
}

type roomRepository struct {
	db *pgxpool.Pool
}

// NewRoomRepository create a RoomRepository
func NewRoomRepository(db *pgxpool.Pool) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) FindEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	row := r.db.QueryRow(ctx,
		`SELECT event_id, title, lat, lon, radius_km, ends_at FROM event WHERE event_id = $1`,
		eventID)

	var e domain.Event
	if err := row.Scan(&e.EventID, &e.Title, &e.Lat, &e.Lon, &e.RadiusKm, &e.EndsAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, errprocess.NotFound("event not found")
		}
		return nil, err
	}
	return &e, nil
}

func (r *roomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO room(room_id, event_id, owner_id, title, max_participants, radius_km, lat, lon, participant_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`,
		room.RoomID, room.EventID, room.OwnerID, room.Title,
		room.MaxParticipants, room.RadiusKm, room.Lat, room.Lon, room.CreatedAt)
	return err
}

func (r *roomRepository) FindRoomByID(ctx context.Context, roomID string) (*domain.Room, error) {
	row := r.db.QueryRow(ctx,
		`SELECT room_id, event_id, owner_id, title, max_participants, radius_km, lat, lon, participant_count, last_message_at, created_at
		 FROM room WHERE room_id = $1`, roomID)

	var room domain.Room
	err := row.Scan(&room.RoomID, &room.EventID, &room.OwnerID, &room.Title,
		&room.MaxParticipants, &room.RadiusKm, &room.Lat, &room.Lon,
		&room.ParticipantCount, &room.LastMessageAt, &room.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errprocess.NotFound("room not found")
		}
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) DeleteRooms(ctx context.Context, roomIDs []string) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM room WHERE room_id = ANY($1)`, textArray(roomIDs))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *roomRepository) FilterExistingRoomIDs(ctx context.Context, roomIDs []string) ([]string, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT room_id FROM room WHERE room_id = ANY($1)`, textArray(roomIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *roomRepository) BulkUpsertCounters(ctx context.Context, deltas []domain.RoomCounterDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	ids := make([]string, len(deltas))
	counts := make([]*int64, len(deltas))
	stamps := make([]*time.Time, len(deltas))
	for i, d := range deltas {
		ids[i] = d.RoomID
		counts[i] = d.ParticipantCount
		stamps[i] = d.LastMessageAt
	}

	// 一條語句完成全部列：participant_count 以快取為準無條件覆寫，
	// last_message_at 只接受嚴格較新的值（冪等，重跑安全）
	_, err := r.db.Exec(ctx, `
		UPDATE room AS r SET
			participant_count = COALESCE(d.participant_count, r.participant_count),
			last_message_at = CASE
				WHEN d.last_message_at IS NOT NULL
				 AND (r.last_message_at IS NULL OR d.last_message_at > r.last_message_at)
				THEN d.last_message_at
				ELSE r.last_message_at
			END
		FROM (
			SELECT * FROM unnest($1::text[], $2::bigint[], $3::timestamptz[])
				AS t(room_id, participant_count, last_message_at)
		) AS d
		WHERE r.room_id = d.room_id`,
		textArray(ids), int8Array(counts), timestamptzArray(stamps))
	return err
}

func (r *roomRepository) AddMemberLocked(ctx context.Context, roomID, userID string, nickname NicknameFunc) (*domain.RoomMembership, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// 鎖住單一房間列，容量檢查到寫入之間不放手
	var maxParticipants int
	err = tx.QueryRow(ctx,
		`SELECT max_participants FROM room WHERE room_id = $1 FOR UPDATE`, roomID).
		Scan(&maxParticipants)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errprocess.NotFound("room not found")
		}
		return nil, err
	}

	var already bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_member WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&already)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, errprocess.Conflict("already joined this room")
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_member WHERE room_id = $1`, roomID).Scan(&count)
	if err != nil {
		return nil, err
	}
	if count >= maxParticipants {
		return nil, errprocess.Conflict(
			fmt.Sprintf("room is full (max %d participants)", maxParticipants))
	}

	nick, err := nickname(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	membership := &domain.RoomMembership{
		RoomID:     roomID,
		UserID:     userID,
		Nickname:   nick,
		LastReadAt: now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO room_member(room_id, user_id, nickname, last_read_at) VALUES ($1, $2, $3, $4)`,
		roomID, userID, nick, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE room SET participant_count = $2 WHERE room_id = $1`, roomID, count+1)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return membership, nil
}

func (r *roomRepository) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM room_member WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *roomRepository) FindMembership(ctx context.Context, roomID, userID string) (*domain.RoomMembership, error) {
	row := r.db.QueryRow(ctx,
		`SELECT room_id, user_id, nickname, last_read_at FROM room_member WHERE room_id = $1 AND user_id = $2`,
		roomID, userID)

	var m domain.RoomMembership
	if err := row.Scan(&m.RoomID, &m.UserID, &m.Nickname, &m.LastReadAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, errprocess.NotFound("membership not found")
		}
		return nil, err
	}
	return &m, nil
}

func (r *roomRepository) UpdateLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE room_member SET last_read_at = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, at)
	return err
}

func (r *roomRepository) DeleteMembershipsByRoomIDs(ctx context.Context, roomIDs []string) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM room_member WHERE room_id = ANY($1)`, textArray(roomIDs))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *roomRepository) FindEmptyRoomIDs(ctx context.Context, createdBefore time.Time) ([]string, error) {
	return r.queryIDs(ctx,
		`SELECT room_id FROM room WHERE participant_count = 0 AND created_at < $1`, createdBefore)
}

func (r *roomRepository) FindInactiveRoomIDs(ctx context.Context, lastMessageBefore time.Time) ([]string, error) {
	// 從未有訊息的房間交給 empty-room 規則的寬限期處理
	return r.queryIDs(ctx,
		`SELECT room_id FROM room WHERE last_message_at IS NOT NULL AND last_message_at < $1`, lastMessageBefore)
}

func (r *roomRepository) FindRoomIDsOfEndedEvents(ctx context.Context, now time.Time) ([]string, error) {
	return r.queryIDs(ctx,
		`SELECT r.room_id FROM room r JOIN event e ON e.event_id = r.event_id WHERE e.ends_at < $1`, now)
}

func (r *roomRepository) queryIDs(ctx context.Context, sql string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// pgtype array helpers：unnest 平行陣列需要能帶 NULL 元素

func textArray(vals []string) pgtype.TextArray {
	elems := make([]pgtype.Text, len(vals))
	for i, v := range vals {
		elems[i] = pgtype.Text{String: v, Status: pgtype.Present}
	}
	return pgtype.TextArray{
		Elements:   elems,
		Dimensions: []pgtype.ArrayDimension{{Length: int32(len(vals)), LowerBound: 1}},
		Status:     pgtype.Present,
	}
}

func int8Array(vals []*int64) pgtype.Int8Array {
	elems := make([]pgtype.Int8, len(vals))
	for i, v := range vals {
		if v == nil {
			elems[i] = pgtype.Int8{Status: pgtype.Null}
		} else {
			elems[i] = pgtype.Int8{Int: *v, Status: pgtype.Present}
		}
	}
	return pgtype.Int8Array{
		Elements:   elems,
		Dimensions: []pgtype.ArrayDimension{{Length: int32(len(vals)), LowerBound: 1}},
		Status:     pgtype.Present,
	}
}

func timestamptzArray(vals []*time.Time) pgtype.TimestamptzArray {
	elems := make([]pgtype.Timestamptz, len(vals))
	for i, v := range vals {
		if v == nil {
			elems[i] = pgtype.Timestamptz{Status: pgtype.Null}
		} else {
			elems[i] = pgtype.Timestamptz{Time: *v, Status: pgtype.Present}
		}
	}
	return pgtype.TimestamptzArray{
		Elements:   elems,
		Dimensions: []pgtype.ArrayDimension{{Length: int32(len(vals)), LowerBound: 1}},
		Status:     pgtype.Present,
	}
}
