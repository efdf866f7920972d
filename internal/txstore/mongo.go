package txstore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pro123908/pepu-bridge-server/internal/model"
)

// MongoStore persists RelayRecord documents to a MongoDB collection with the
// index layout of spec §6: unique on id; sparse on eventHash, relayHash,
// sourceToken, destToken; non-unique on user, chain, status.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps an already-connected collection. EnsureIndexes should
// be called once at startup.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// EnsureIndexes creates the indexes spec §6 requires. Safe to call repeatedly.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	sparse := true
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "eventHash", Value: 1}}, Options: options.Index().SetSparse(sparse)},
		{Keys: bson.D{{Key: "relayHash", Value: 1}}, Options: options.Index().SetSparse(sparse)},
		{Keys: bson.D{{Key: "sourceToken", Value: 1}}, Options: options.Index().SetSparse(sparse)},
		{Keys: bson.D{{Key: "destToken", Value: 1}}, Options: options.Index().SetSparse(sparse)},
		{Keys: bson.D{{Key: "user", Value: 1}}},
		{Keys: bson.D{{Key: "chain", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	_, err := m.coll.Indexes().CreateMany(ctx, models)
	return err
}

func (m *MongoStore) UpsertByID(ctx context.Context, record *model.RelayRecord) (*model.RelayRecord, error) {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.User = strings.ToLower(record.User)

	_, err := m.coll.UpdateOne(ctx,
		bson.M{"id": record.ID},
		bson.M{"$set": record},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (m *MongoStore) HashExists(ctx context.Context, h string) (bool, error) {
	if h == "" {
		return false, nil
	}
	n, err := m.coll.CountDocuments(ctx, hashFilter(h), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MongoStore) FindByHash(ctx context.Context, h string) (*model.RelayRecord, error) {
	if h == "" {
		return nil, nil
	}
	var rec model.RelayRecord
	err := m.coll.FindOne(ctx, hashFilter(h)).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateStatusByHash sets status on the matching record unless it is
// already in a terminal state, per spec §3's monotonic-status invariant.
func (m *MongoStore) UpdateStatusByHash(ctx context.Context, h string, status model.Status) (bool, error) {
	filter := bson.M{
		"$and": []bson.M{
			hashFilter(h),
			{"status": bson.M{"$nin": []model.Status{model.StatusConfirmed, model.StatusFailed}}},
		},
	}
	res, err := m.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"status":    status,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (m *MongoStore) ListAll(ctx context.Context, limit int) ([]*model.RelayRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := m.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (m *MongoStore) ListPendingByUser(ctx context.Context, user string) ([]*model.RelayRecord, error) {
	cur, err := m.coll.Find(ctx, bson.M{
		"user":   strings.ToLower(user),
		"status": model.StatusPending,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (m *MongoStore) ListPendingByChain(ctx context.Context, chain model.Chain) ([]*model.RelayRecord, error) {
	cur, err := m.coll.Find(ctx, bson.M{
		"chain":  chain,
		"status": model.StatusPending,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (m *MongoStore) ClearAll(ctx context.Context) error {
	_, err := m.coll.DeleteMany(ctx, bson.M{})
	return err
}

func (m *MongoStore) AllHashes(ctx context.Context) ([]string, error) {
	cur, err := m.coll.Find(ctx, bson.M{
		"$or": []bson.M{
			{"eventHash": bson.M{"$exists": true, "$ne": ""}},
			{"relayHash": bson.M{"$exists": true, "$ne": ""}},
		},
	}, options.Find().SetProjection(bson.M{"eventHash": 1, "relayHash": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var hashes []string
	for cur.Next(ctx) {
		var row struct {
			EventHash string `bson:"eventHash"`
			RelayHash string `bson:"relayHash"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		if row.EventHash != "" {
			hashes = append(hashes, row.EventHash)
		}
		if row.RelayHash != "" {
			hashes = append(hashes, row.RelayHash)
		}
	}
	return hashes, cur.Err()
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.coll.Database().Client().Disconnect(ctx)
}

func hashFilter(h string) bson.M {
	return bson.M{"$or": []bson.M{{"eventHash": h}, {"relayHash": h}}}
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]*model.RelayRecord, error) {
	var out []*model.RelayRecord
	for cur.Next(ctx) {
		var rec model.RelayRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}

var _ TxStore = (*MongoStore)(nil)
