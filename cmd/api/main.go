package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anime-auth-api/internal/application/auth"
	"github.com/anime-auth-api/internal/application/otp"
	"github.com/anime-auth-api/internal/application/user"
	"github.com/anime-auth-api/internal/config"
	"github.com/anime-auth-api/internal/infrastructure/credential"
	"github.com/anime-auth-api/internal/infrastructure/dynamo"
	mongostore "github.com/anime-auth-api/internal/infrastructure/mongo"
	redisstore "github.com/anime-auth-api/internal/infrastructure/redis"
	s3infra "github.com/anime-auth-api/internal/infrastructure/s3"
	"github.com/anime-auth-api/internal/infrastructure/smtp"
	"github.com/anime-auth-api/internal/infrastructure/sns"
	transporthttp "github.com/anime-auth-api/internal/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamodb: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)

	otpStore, closeStore, err := openOTPStore(ctx, cfg, dynamoClient)
	if err != nil {
		log.Fatalf("otp store: %v", err)
	}
	defer closeStore()

	// Email templates, with optional overrides from S3.
	var source smtp.TemplateSource
	if cfg.S3TemplateBucket != "" {
		s3Client, err := s3infra.NewClient(ctx, cfg)
		if err != nil {
			log.Fatalf("s3: %v", err)
		}
		source = s3infra.NewStore(s3Client, cfg.S3TemplateBucket)
	}
	templates, err := smtp.LoadTemplates(ctx, source)
	if err != nil {
		log.Fatalf("email templates: %v", err)
	}

	authDeps := auth.ServiceDeps{
		OTPStore:    otpStore,
		UserRepo:    userRepo,
		Mailer:      smtp.NewMailer(cfg, templates),
		Credentials: credential.NewProvider(userRepo),
		OTPOptions:  otp.Options{TTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxAttempts},
		AppName:     cfg.AppName,
	}

	// SNS audit events (optional).
	if cfg.SNSEventsTopicARN != "" {
		if publisher, err := sns.NewPublisher(ctx, cfg); err == nil {
			authDeps.Events = publisher
		} else {
			log.Printf("WARN: SNS publisher not available: %v", err)
		}
	}

	deps := &transporthttp.Deps{
		AuthService: auth.NewService(authDeps),
		UserService: user.NewService(user.ServiceDeps{UserRepo: userRepo}),
	}
	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, otp_store=%s)", cfg.AppPort, cfg.AppEnv, cfg.OTPStore)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// openOTPStore selects the OTP backend named by cfg.OTPStore. The returned
// func releases its connection.
func openOTPStore(ctx context.Context, cfg *config.Config, dynamoClient *dynamodb.Client) (otp.Store, func(), error) {
	switch cfg.OTPStore {
	case config.OTPStoreDynamo:
		return dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OTPCodes), func() {}, nil
	case config.OTPStoreRedis:
		rdb := redisstore.NewClient(cfg)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return redisstore.NewOTPStore(rdb), func() { _ = rdb.Close() }, nil
	case config.OTPStoreMongo:
		client, err := mongostore.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.NewOTPStore(mongostore.OTPCollection(client, cfg))
		store.EnsureIndexes(ctx)
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown OTP_STORE %q", cfg.OTPStore)
	}
}
