package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/anime-auth-api/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const otpCollection = "otp_codes"

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// OTPCollection returns the OTP collection of the configured database.
func OTPCollection(client *mongo.Client, cfg *config.Config) *mongo.Collection {
	return client.Database(cfg.MongoDB).Collection(otpCollection)
}
