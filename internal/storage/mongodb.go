package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/configs"
	"github.com/bosocmputer/invoice_po_matcher/internal/matching"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const queryTimeout = 5 * time.Second

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB(log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Info("connected to MongoDB", zap.String("database", configs.MONGO_DB_NAME))
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB(log *zap.Logger) {
	if mongoClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.Warn("MongoDB disconnect failed", zap.Error(err))
		return
	}
	log.Info("MongoDB connection closed")
}

// MongoStore is the purchasing database: POs, jobs, the assist audit log
// and settings.
type MongoStore struct {
	db   *mongo.Database
	jobs *JobNameCache
}

// NewMongoStore wraps db. Active job names are cached for cacheTTL.
func NewMongoStore(db *mongo.Database, cacheTTL time.Duration) *MongoStore {
	return &MongoStore{db: db, jobs: NewJobNameCache(cacheTTL)}
}

// eligibleFilter matches approved POs without an invoice.
func eligibleFilter() bson.M {
	return bson.M{
		"status": "approved",
		"$or": bson.A{
			bson.M{"invoice_filename": bson.M{"$exists": false}},
			bson.M{"invoice_filename": nil},
			bson.M{"invoice_filename": ""},
		},
	}
}

// Ping checks connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.db.Client().Ping(ctx, nil)
}

// ListEligiblePOs returns approved POs without an invoice, by id.
func (s *MongoStore) ListEligiblePOs(ctx context.Context) ([]matching.EligiblePO, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(CollectionPORequests).Find(ctx, eligibleFilter(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query po_requests: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []PORequest
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode po_requests: %w", err)
	}

	pos := make([]matching.EligiblePO, 0, len(docs))
	for _, d := range docs {
		pos = append(pos, d.EligiblePO())
	}
	return pos, nil
}

// ListActiveJobNames returns job names with active=1, cached.
func (s *MongoStore) ListActiveJobNames(ctx context.Context) ([]string, error) {
	return s.jobs.GetOrLoad(ctx, s.loadActiveJobNames)
}

func (s *MongoStore) loadActiveJobNames(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "year", Value: -1}, {Key: "job_name", Value: 1}})
	cursor, err := s.db.Collection(CollectionJobs).Find(ctx, bson.M{"active": 1}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var jobs []Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}

	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if j.JobName != "" {
			names = append(names, j.JobName)
		}
	}
	return names, nil
}

// RecordMatch files an invoice against a PO. The update only applies while
// the PO is still eligible; otherwise ErrPOUnavailable is returned.
func (s *MongoStore) RecordMatch(ctx context.Context, rec MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := eligibleFilter()
	filter["_id"] = rec.POID

	res, err := s.db.Collection(CollectionPORequests).UpdateOne(ctx, filter, bson.M{"$set": matchUpdate(rec)})
	if err != nil {
		return fmt.Errorf("failed to update PO %d: %w", rec.POID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("PO %d: %w", rec.POID, ErrPOUnavailable)
	}
	return nil
}

// ServiceJobActive reports whether an active job is named "service" in any case.
func (s *MongoStore) ServiceJobActive(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"active":   1,
		"job_name": bson.M{"$regex": "^service$", "$options": "i"},
	}
	n, err := s.db.Collection(CollectionJobs).CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("failed to query jobs: %w", err)
	}
	return n > 0, nil
}

// SetPOJobName renames the job of a PO.
func (s *MongoStore) SetPOJobName(ctx context.Context, poID int, jobName string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.Collection(CollectionPORequests).UpdateOne(ctx,
		bson.M{"_id": poID}, bson.M{"$set": bson.M{"job_name": jobName}})
	if err != nil {
		return fmt.Errorf("failed to update PO %d: %w", poID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("PO %d: %w", poID, ErrNotFound)
	}
	return nil
}

// LogAPIUsage appends an assist audit record.
func (s *MongoStore) LogAPIUsage(ctx context.Context, rec matching.UsageRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.db.Collection(CollectionAPIUsage).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to log API usage: %w", err)
	}
	return nil
}

// RecentAPIUsage returns the newest audit records first.
func (s *MongoStore) RecentAPIUsage(ctx context.Context, limit int64) ([]matching.UsageRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := s.db.Collection(CollectionAPIUsage).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query api_usage_log: %w", err)
	}
	defer cursor.Close(ctx)

	records := []matching.UsageRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode api_usage_log: %w", err)
	}
	return records, nil
}

// UsageStats aggregates the audit log and counts match methods on filed POs.
func (s *MongoStore) UsageStats(ctx context.Context) (UsageStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stats := UsageStats{MatchMethods: map[string]int64{}}

	usagePipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"total":      bson.M{"$sum": 1},
			"successful": bson.M{"$sum": bson.M{"$cond": bson.A{"$success", 1, 0}}},
			"total_cost": bson.M{"$sum": "$cost_estimate"},
		}}},
	}
	cursor, err := s.db.Collection(CollectionAPIUsage).Aggregate(ctx, usagePipeline)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate api_usage_log: %w", err)
	}
	var totals []struct {
		Total      int64   `bson:"total"`
		Successful int64   `bson:"successful"`
		TotalCost  float64 `bson:"total_cost"`
	}
	if err := cursor.All(ctx, &totals); err != nil {
		return stats, fmt.Errorf("failed to decode usage totals: %w", err)
	}
	if len(totals) > 0 {
		stats.TotalCalls = totals[0].Total
		stats.Successful = totals[0].Successful
		stats.TotalCost = totals[0].TotalCost
	}
	stats.SuccessRate = SuccessRatePercent(stats.Successful, stats.TotalCalls)

	methodPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"match_method": bson.M{"$nin": bson.A{nil, ""}}}}},
		{{Key: "$group", Value: bson.M{"_id": "$match_method", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
	}
	cursor, err = s.db.Collection(CollectionPORequests).Aggregate(ctx, methodPipeline)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate match methods: %w", err)
	}
	var methods []struct {
		Method string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &methods); err != nil {
		return stats, fmt.Errorf("failed to decode match methods: %w", err)
	}
	for _, m := range methods {
		stats.MatchMethods[m.Method] = m.Count
	}
	return stats, nil
}

type settingDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// GetAssistEnabled reads the persisted assist toggle, def when unset.
func (s *MongoStore) GetAssistEnabled(ctx context.Context, def bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc settingDoc
	err := s.db.Collection(CollectionSettings).FindOne(ctx, bson.M{"_id": SettingAssistEnabled}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read setting: %w", err)
	}
	return doc.Value == "true", nil
}

// SetAssistEnabled persists the assist toggle.
func (s *MongoStore) SetAssistEnabled(ctx context.Context, enabled bool) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := settingDoc{Key: SettingAssistEnabled, Value: fmt.Sprintf("%t", enabled), UpdatedAt: time.Now()}
	_, err := s.db.Collection(CollectionSettings).ReplaceOne(ctx,
		bson.M{"_id": SettingAssistEnabled}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	return nil
}

// InvalidateJobCache forces the next job list read to hit the database.
func (s *MongoStore) InvalidateJobCache() {
	s.jobs.Invalidate()
}
