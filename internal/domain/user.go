package domain

import "time"

type User struct {
	UserID        string    `json:"id" dynamodbav:"user_id"`
	Email         string    `json:"email" dynamodbav:"email"`
	DisplayName   string    `json:"displayName" dynamodbav:"display_name"`
	PasswordHash  string    `json:"-" dynamodbav:"password_hash"`
	EmailVerified bool      `json:"emailVerified" dynamodbav:"email_verified"`
	CreatedAt     time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"displayName" validate:"required,max=64"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
}
