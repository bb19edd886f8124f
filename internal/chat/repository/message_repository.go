package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"festival_chat_service/internal/chat/domain"
	errprocess "festival_chat_service/pkg/err"
)

// MessageRepository definition message document store
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *domain.ChatMessage) error
	FindByID(ctx context.Context, messageID string) (*domain.ChatMessage, error)
	FindByRoomID(ctx context.Context, roomID string, limit int64) ([]domain.ChatMessage, error)
	// FindIDsByRoomIDs cascade 刪除第一步：先讀出 id，還不刪
	FindIDsByRoomIDs(ctx context.Context, roomIDs []string) ([]string, error)
	DeleteByRoomIDs(ctx context.Context, roomIDs []string) (int64, error)
	// BulkUpdateLikes reconcile 寫回 like snapshot，一次 BulkWrite
	BulkUpdateLikes(ctx context.Context, backups []domain.MessageLikeBackup) error
	// FilterIDsCreatedSince 回傳 ids 中建立時間在 cutoff 之後（仍新鮮）的子集
	FilterIDsCreatedSince(ctx context.Context, messageIDs []string, cutoff time.Time) ([]string, error)
}

type chatMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoChatMessageRepository create a MessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll: db.Collection("chat_messages"),
	}
}

func (r *chatMessageRepository) InsertMessage(ctx context.Context, msg *domain.ChatMessage) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

func (r *chatMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errprocess.NotFound("message not found")
		}
		return nil, err
	}
	return &msg, nil
}

func (r *chatMessageRepository) FindByRoomID(ctx context.Context, roomID string, limit int64) ([]domain.ChatMessage, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, err
	}
	var msgs []domain.ChatMessage
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatMessageRepository) FindIDsByRoomIDs(ctx context.Context, roomIDs []string) ([]string, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"room_id": bson.M{"$in": roomIDs}}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r *chatMessageRepository) DeleteByRoomIDs(ctx context.Context, roomIDs []string) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	res, err := r.coll.DeleteMany(ctx, bson.M{"room_id": bson.M{"$in": roomIDs}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *chatMessageRepository) BulkUpdateLikes(ctx context.Context, backups []domain.MessageLikeBackup) error {
	if len(backups) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(backups))
	for _, b := range backups {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": b.MessageID}).
			SetUpdate(bson.M{"$set": bson.M{
				"like_count": b.LikeCount,
				"liked_by":   b.LikedBy,
			}}))
	}

	// 無序執行，單筆失敗不擋下其餘
	opts := options.BulkWrite().SetOrdered(false)
	_, err := r.coll.BulkWrite(ctx, models, opts)
	return err
}

func (r *chatMessageRepository) FilterIDsCreatedSince(ctx context.Context, messageIDs []string, cutoff time.Time) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"_id":        bson.M{"$in": messageIDs},
		"created_at": bson.M{"$gte": cutoff},
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
