package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anime-auth-api/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ttlGrace delays removal by the TTL monitor so expired codes are still
// reported as expired.
const ttlGrace = 24 * time.Hour

// otpDocument is the stored shape; _id is "<purpose>:<email>".
type otpDocument struct {
	ID               string `bson:"_id"`
	domain.OTPRecord `bson:",inline"`
}

// OTPStore keeps OTP records in a MongoDB collection.
type OTPStore struct {
	coll *mongo.Collection
}

func NewOTPStore(coll *mongo.Collection) *OTPStore {
	return &OTPStore{coll: coll}
}

// EnsureIndexes creates the TTL index that purges long-expired records.
func (s *OTPStore) EnsureIndexes(ctx context.Context) {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttlGrace.Seconds())),
	})
	if err != nil {
		slog.Warn("could not create OTP TTL index", "err", err)
	}
}

func (s *OTPStore) Put(ctx context.Context, rec *domain.OTPRecord) error {
	doc := otpDocument{ID: docID(rec.Purpose, rec.Email), OTPRecord: *rec}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *OTPStore) Get(ctx context.Context, purpose domain.Purpose, email string) (*domain.OTPRecord, error) {
	var doc otpDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": docID(purpose, email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc.OTPRecord, nil
}

func (s *OTPStore) IncrementAttempts(ctx context.Context, purpose domain.Purpose, email string) error {
	return s.update(ctx, purpose, email, bson.M{"$inc": bson.M{"attempts": 1}})
}

func (s *OTPStore) MarkVerified(ctx context.Context, purpose domain.Purpose, email string, at time.Time) error {
	return s.update(ctx, purpose, email, bson.M{"$set": bson.M{"verified": true, "verified_at": at}})
}

func (s *OTPStore) Delete(ctx context.Context, purpose domain.Purpose, email string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": docID(purpose, email)})
	return err
}

// update never upserts, so a concurrently deleted record stays deleted.
func (s *OTPStore) update(ctx context.Context, purpose domain.Purpose, email string, change bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": docID(purpose, email)}, change)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	return nil
}

func docID(purpose domain.Purpose, email string) string {
	return string(purpose) + ":" + email
}
