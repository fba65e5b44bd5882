package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anime-auth-api/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TTLGrace keeps expired records readable long enough for the service to
// report them as expired rather than missing. DynamoDB TTL removes them
// afterwards.
const TTLGrace = 24 * time.Hour

// OTPRepo stores one OTP record per (email, purpose).
// PK: email, SK: purpose.
type OTPRepo struct {
	client    API
	tableName string
}

func NewOTPRepo(client API, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

// Put upserts rec, replacing any previous code for the same key.
func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	item[fieldTTL] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(rec.ExpiresAt.Add(TTLGrace).Unix(), 10),
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *OTPRepo) Get(ctx context.Context, purpose domain.Purpose, email string) (*domain.OTPRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(purpose, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	var rec domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IncrementAttempts adds one to the counter in place. It never recreates a
// record deleted in the meantime.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, purpose domain.Purpose, email string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      r.key(purpose, email),
		UpdateExpression:         aws.String("ADD #a :one"),
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#a": fieldAttempts, "#pk": fieldEmail},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *OTPRepo) MarkVerified(ctx context.Context, purpose domain.Purpose, email string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldVerified:   true,
		fieldVerifiedAt: at,
	})
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldEmail
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(purpose, email),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *OTPRepo) Delete(ctx context.Context, purpose domain.Purpose, email string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key(purpose, email),
	})
	return err
}

func (r *OTPRepo) key(purpose domain.Purpose, email string) map[string]types.AttributeValue {
	return compositeKey(fieldEmail, email, fieldPurpose, string(purpose))
}
