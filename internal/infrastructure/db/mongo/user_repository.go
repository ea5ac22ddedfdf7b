package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vidtube/account-service/internal/core/domain"
)

const (
	usersCollection         = "users"
	subscriptionsCollection = "subscriptions"
	videosCollection        = "videos"
)

type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(usersCollection)}
}

type mongoUser struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty"`
	Username      string               `bson:"username"`
	Email         string               `bson:"email"`
	FullName      string               `bson:"fullname"`
	PasswordHash  string               `bson:"password_hash"`
	AvatarURL     string               `bson:"avatar_url"`
	CoverImageURL string               `bson:"cover_image_url,omitempty"`
	RefreshToken  string               `bson:"refresh_token,omitempty"`
	WatchHistory  []primitive.ObjectID `bson:"watch_history,omitempty"`
	CreatedAt     int64                `bson:"created_at"`
	UpdatedAt     int64                `bson:"updated_at"`
}

// EnsureIndexes creates the unique indexes backing the username/email
// global-uniqueness invariant. Call once at startup.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := mongoUser{
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		PasswordHash:  user.PasswordHash,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		CreatedAt:     user.CreatedAt.Unix(),
		UpdatedAt:     user.UpdatedAt.Unix(),
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("insert user: unexpected inserted id type %T", res.InsertedID)
	}
	doc.ID = oid
	return doc.toDomain(), nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	var mu mongoUser
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&mu); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return mu.toDomain(), nil
}

func (r *MongoUserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	or := bson.A{}
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if len(or) == 0 {
		return nil, domain.ErrUserNotFound
	}

	var mu mongoUser
	if err := r.coll.FindOne(ctx, bson.M{"$or": or}).Decode(&mu); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

func (r *MongoUserRepository) UpdateFields(ctx context.Context, id string, fields map[string]any) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC().Unix()}
	for k, v := range fields {
		set[k] = v
	}

	var mu mongoUser
	err = r.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&mu)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("update user fields: %w", err)
	}
	return mu.toDomain(), nil
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"password_hash": passwordHash,
		"updated_at":    time.Now().UTC().Unix(),
	}})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *MongoUserRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"refresh_token": token}})
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *MongoUserRepository) ClearRefreshToken(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	// Unsetting an already-absent field matches the document anyway, which
	// keeps logout idempotent.
	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$unset": bson.M{"refresh_token": ""}})
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SwapRefreshToken is the rotation compare-and-swap: the filter includes the
// presented token, so a concurrent rotation that already overwrote it makes
// this a no-match and the caller sees ErrRefreshTokenStale.
func (r *MongoUserRepository) SwapRefreshToken(ctx context.Context, id, oldToken, newToken string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": oid, "refresh_token": oldToken},
		bson.M{"$set": bson.M{"refresh_token": newToken}},
	)
	if err != nil {
		return fmt.Errorf("swap refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRefreshTokenStale
	}
	return nil
}

func (r *MongoUserRepository) AppendWatchHistory(ctx context.Context, userID, videoID string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return domain.ErrUserNotFound
	}
	vid, err := primitive.ObjectIDFromHex(videoID)
	if err != nil {
		return fmt.Errorf("%w: invalid video id", domain.ErrInvalidInput)
	}

	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$push": bson.M{"watch_history": vid}})
	if err != nil {
		return fmt.Errorf("append watch history: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

type channelProfileDoc struct {
	ID                primitive.ObjectID `bson:"_id"`
	Username          string             `bson:"username"`
	FullName          string             `bson:"fullname"`
	Email             string             `bson:"email"`
	AvatarURL         string             `bson:"avatar_url"`
	CoverImageURL     string             `bson:"cover_image_url,omitempty"`
	SubscriberCount   int64              `bson:"subscribers_count"`
	SubscribedToCount int64              `bson:"subscribed_to_count"`
	IsSubscribed      bool               `bson:"is_subscribed"`
	CreatedAt         int64              `bson:"created_at"`
}

// ChannelProfile aggregates a channel with its subscription edges: two
// lookups against the subscriptions collection, counts via $size, and an $in
// membership test for the viewer.
func (r *MongoUserRepository) ChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error) {
	isSubscribed := bson.M{"$literal": false}
	if viewerOID, err := primitive.ObjectIDFromHex(viewerID); err == nil {
		isSubscribed = bson.M{"$in": bson.A{viewerOID, "$subscribers.subscriber"}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"username": username}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         subscriptionsCollection,
			"localField":   "_id",
			"foreignField": "channel",
			"as":           "subscribers",
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         subscriptionsCollection,
			"localField":   "_id",
			"foreignField": "subscriber",
			"as":           "subscribed_to",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"subscribers_count":   bson.M{"$size": "$subscribers"},
			"subscribed_to_count": bson.M{"$size": "$subscribed_to"},
			"is_subscribed":       isSubscribed,
		}}},
		{{Key: "$project", Value: bson.M{
			"username":            1,
			"fullname":            1,
			"email":               1,
			"avatar_url":          1,
			"cover_image_url":     1,
			"subscribers_count":   1,
			"subscribed_to_count": 1,
			"is_subscribed":       1,
			"created_at":          1,
		}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("channel profile aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []channelProfileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("channel profile decode: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrChannelNotFound
	}

	d := docs[0]
	return &domain.ChannelProfile{
		ID:                d.ID.Hex(),
		Username:          d.Username,
		FullName:          d.FullName,
		Email:             d.Email,
		AvatarURL:         d.AvatarURL,
		CoverImageURL:     d.CoverImageURL,
		SubscriberCount:   d.SubscriberCount,
		SubscribedToCount: d.SubscribedToCount,
		IsSubscribed:      d.IsSubscribed,
		CreatedAt:         unixToTime(d.CreatedAt),
	}, nil
}

type watchHistoryDoc struct {
	WatchHistory []watchVideoDoc `bson:"watch_history"`
}

type watchVideoDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Title        string             `bson:"title"`
	ThumbnailURL string             `bson:"thumbnail_url,omitempty"`
	Duration     float64            `bson:"duration"`
	Owner        watchOwnerDoc      `bson:"owner"`
}

type watchOwnerDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Username  string             `bson:"username"`
	FullName  string             `bson:"fullname"`
	AvatarURL string             `bson:"avatar_url"`
}

// WatchHistory joins the ordered watch_history references against the videos
// collection, with a nested lookup resolving each video's owner down to a
// {fullname, username, avatar} projection.
func (r *MongoUserRepository) WatchHistory(ctx context.Context, userID string) ([]domain.WatchEntry, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": oid}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         videosCollection,
			"localField":   "watch_history",
			"foreignField": "_id",
			"as":           "watch_history",
			"pipeline": bson.A{
				bson.M{"$lookup": bson.M{
					"from":         usersCollection,
					"localField":   "owner",
					"foreignField": "_id",
					"as":           "owner",
					"pipeline": bson.A{
						bson.M{"$project": bson.M{
							"username":   1,
							"fullname":   1,
							"avatar_url": 1,
						}},
					},
				}},
				bson.M{"$addFields": bson.M{
					"owner": bson.M{"$first": "$owner"},
				}},
			},
		}}},
		{{Key: "$project", Value: bson.M{"watch_history": 1}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("watch history aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []watchHistoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("watch history decode: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrUserNotFound
	}

	entries := make([]domain.WatchEntry, 0, len(docs[0].WatchHistory))
	for _, v := range docs[0].WatchHistory {
		entries = append(entries, domain.WatchEntry{
			VideoID:      v.ID.Hex(),
			Title:        v.Title,
			ThumbnailURL: v.ThumbnailURL,
			Duration:     v.Duration,
			Owner: domain.VideoOwner{
				ID:        v.Owner.ID.Hex(),
				Username:  v.Owner.Username,
				FullName:  v.Owner.FullName,
				AvatarURL: v.Owner.AvatarURL,
			},
		})
	}
	return entries, nil
}

func (mu *mongoUser) toDomain() *domain.User {
	history := make([]string, 0, len(mu.WatchHistory))
	for _, id := range mu.WatchHistory {
		history = append(history, id.Hex())
	}

	return &domain.User{
		ID:            mu.ID.Hex(),
		Username:      mu.Username,
		Email:         mu.Email,
		FullName:      mu.FullName,
		PasswordHash:  mu.PasswordHash,
		AvatarURL:     mu.AvatarURL,
		CoverImageURL: mu.CoverImageURL,
		RefreshToken:  mu.RefreshToken,
		WatchHistory:  history,
		CreatedAt:     unixToTime(mu.CreatedAt),
		UpdatedAt:     unixToTime(mu.UpdatedAt),
	}
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
