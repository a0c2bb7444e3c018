// internal/database/user_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user. The lower-cased
// copies back the case-insensitive unique indexes.
type UserDocument struct {
	ID             string     `bson:"_id"`
	Username       string     `bson:"username"`
	UsernameLower  string     `bson:"usernameLower"`
	Email          string     `bson:"email"`
	EmailLower     string     `bson:"emailLower"`
	HashedPassword string     `bson:"hashedPassword"`
	Bio            string     `bson:"bio"`
	Location       string     `bson:"location"`
	Birthdate      *time.Time `bson:"birthdate,omitempty"`
	Signature      string     `bson:"signature"`
	CreatedAt      time.Time  `bson:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt"`
}

func documentToUser(doc *UserDocument) (*models.User, error) {
	userID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %w", err)
	}
	return &models.User{
		ID:             userID,
		Username:       doc.Username,
		Email:          doc.Email,
		HashedPassword: doc.HashedPassword,
		Bio:            doc.Bio,
		Location:       doc.Location,
		Birthdate:      doc.Birthdate,
		Signature:      doc.Signature,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

func (m *MongoDB) InsertUser(ctx context.Context, user *models.User) error {
	doc := UserDocument{
		ID:             user.ID.String(),
		Username:       user.Username,
		UsernameLower:  strings.ToLower(user.Username),
		Email:          user.Email,
		EmailLower:     strings.ToLower(user.Email),
		HashedPassword: user.HashedPassword,
		Bio:            user.Bio,
		Location:       user.Location,
		Birthdate:      user.Birthdate,
		Signature:      user.Signature,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
	return m.guard.do(ctx, "insert user", func(ctx context.Context) error {
		_, err := m.Users.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "uniq_email") {
				return utils.NewConflictError("Email is already registered.")
			}
			return utils.NewConflictError("Username is already taken.")
		}
		return err
	})
}

func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user *models.User
	err := m.guard.do(ctx, "get user", func(ctx context.Context) error {
		var doc UserDocument
		err := m.Users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return utils.NewNotFoundError("User not found.")
		}
		if err != nil {
			return err
		}
		user, err = documentToUser(&doc)
		return err
	})
	return user, err
}

func (m *MongoDB) updateUser(ctx context.Context, op string, id uuid.UUID, set bson.M) (*models.User, error) {
	set["updatedAt"] = time.Now().UTC()
	var user *models.User
	err := m.guard.do(ctx, op, func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var doc UserDocument
		err := m.Users.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set}, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return utils.NewNotFoundError("User not found.")
		}
		if err != nil {
			return err
		}
		user, err = documentToUser(&doc)
		return err
	})
	return user, err
}

func (m *MongoDB) UpdateProfile(ctx context.Context, id uuid.UUID, profile models.Profile) (*models.User, error) {
	return m.updateUser(ctx, "update profile", id, bson.M{
		"bio":       profile.Bio,
		"location":  profile.Location,
		"birthdate": profile.Birthdate,
	})
}

func (m *MongoDB) UpdateSignature(ctx context.Context, id uuid.UUID, signature string) (*models.User, error) {
	return m.updateUser(ctx, "update signature", id, bson.M{"signature": signature})
}

func (m *MongoDB) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	_, err := m.updateUser(ctx, "update password", id, bson.M{"hashedPassword": hashedPassword})
	return err
}
