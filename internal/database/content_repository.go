// internal/database/content_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ContentDocument represents the MongoDB schema for a post or comment.
type ContentDocument struct {
	ID           string    `bson:"_id"`
	IsRoot       bool      `bson:"isRoot"`
	ParentID     *string   `bson:"parentId"`
	AuthorID     string    `bson:"authorId"`
	AuthorName   string    `bson:"authorName"`
	CategoryID   string    `bson:"categoryId"`
	Title        string    `bson:"title"`
	Body         string    `bson:"body"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
	Upvotes      int64     `bson:"upvotes"`
	Downvotes    int64     `bson:"downvotes"`
	CommentCount int64     `bson:"commentCount"`
	Locked       bool      `bson:"locked"`
	Sticky       bool      `bson:"sticky"`
}

func contentToDocument(c *models.Content) *ContentDocument {
	doc := &ContentDocument{
		ID:           c.ID.String(),
		IsRoot:       c.IsRoot,
		AuthorID:     c.AuthorID.String(),
		AuthorName:   c.AuthorName,
		CategoryID:   c.CategoryID,
		Title:        c.Title,
		Body:         c.Body,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Upvotes:      c.Upvotes,
		Downvotes:    c.Downvotes,
		CommentCount: c.CommentCount,
		Locked:       c.Locked,
		Sticky:       c.Sticky,
	}
	if c.ParentID != nil {
		parent := c.ParentID.String()
		doc.ParentID = &parent
	}
	return doc
}

func documentToContent(doc *ContentDocument) (*models.Content, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid content ID: %w", err)
	}
	authorID, err := uuid.Parse(doc.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("invalid author ID: %w", err)
	}
	c := &models.Content{
		ID:           id,
		IsRoot:       doc.IsRoot,
		AuthorID:     authorID,
		AuthorName:   doc.AuthorName,
		CategoryID:   doc.CategoryID,
		Title:        doc.Title,
		Body:         doc.Body,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		Upvotes:      doc.Upvotes,
		Downvotes:    doc.Downvotes,
		CommentCount: doc.CommentCount,
		Locked:       doc.Locked,
		Sticky:       doc.Sticky,
	}
	if doc.ParentID != nil {
		parentID, err := uuid.Parse(*doc.ParentID)
		if err != nil {
			return nil, fmt.Errorf("invalid parent ID: %w", err)
		}
		c.ParentID = &parentID
	}
	return c, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return utils.NewNotFoundError("Target not found.")
	}
	return err
}

func (m *MongoDB) InsertContent(ctx context.Context, content *models.Content) error {
	return m.guard.do(ctx, "insert content", func(ctx context.Context) error {
		_, err := m.Contents.InsertOne(ctx, contentToDocument(content))
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewConflictError("Content already exists.")
		}
		return err
	})
}

func (m *MongoDB) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	var content *models.Content
	err := m.guard.do(ctx, "get content", func(ctx context.Context) error {
		var doc ContentDocument
		if err := m.Contents.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
			return notFoundOr(err)
		}
		var err error
		content, err = documentToContent(&doc)
		return err
	})
	return content, err
}

// LockContent reads the record. Inside a transaction, the counter write that
// follows makes concurrent writers on the same record conflict and retry.
func (m *MongoDB) LockContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	return m.GetContent(ctx, id)
}

func (m *MongoDB) findOneAndUpdate(ctx context.Context, op string, id uuid.UUID, update interface{}) (*models.Content, error) {
	var content *models.Content
	err := m.guard.do(ctx, op, func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var doc ContentDocument
		if err := m.Contents.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, update, opts).Decode(&doc); err != nil {
			return notFoundOr(err)
		}
		var err error
		content, err = documentToContent(&doc)
		return err
	})
	return content, err
}

func (m *MongoDB) UpdateContentText(ctx context.Context, id uuid.UUID, title, body string, at time.Time) (*models.Content, error) {
	update := bson.M{"$set": bson.M{"title": title, "body": body, "updatedAt": at}}
	return m.findOneAndUpdate(ctx, "update content", id, update)
}

func (m *MongoDB) SetContentFlags(ctx context.Context, id uuid.UUID, locked, sticky *bool) (*models.Content, error) {
	set := bson.M{}
	if locked != nil {
		set["locked"] = *locked
	}
	if sticky != nil {
		set["sticky"] = *sticky
	}
	if len(set) == 0 {
		return m.GetContent(ctx, id)
	}
	return m.findOneAndUpdate(ctx, "set content flags", id, bson.M{"$set": set})
}

func (m *MongoDB) DeleteContent(ctx context.Context, id uuid.UUID) error {
	return m.guard.do(ctx, "delete content", func(ctx context.Context) error {
		res, err := m.Contents.DeleteOne(ctx, bson.M{"_id": id.String()})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return utils.NewNotFoundError("Target not found.")
		}
		return nil
	})
}

func (m *MongoDB) DeleteComments(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.guard.do(ctx, "delete comments", func(ctx context.Context) error {
		filter := bson.M{"parentId": parentID.String()}
		cursor, err := m.Contents.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return err
		}
		var docs []struct {
			ID string `bson:"_id"`
		}
		if err := cursor.All(ctx, &docs); err != nil {
			return err
		}
		for _, d := range docs {
			if id, err := uuid.Parse(d.ID); err == nil {
				ids = append(ids, id)
			}
		}
		// Delete by parent rather than by the ids found above so a comment
		// inserted in between cannot be left behind.
		_, err = m.Contents.DeleteMany(ctx, filter)
		return err
	})
	return ids, err
}

func (m *MongoDB) listContents(ctx context.Context, op string, filter bson.M, sort bson.D, page models.Page) ([]*models.Content, int64, error) {
	var (
		contents []*models.Content
		total    int64
	)
	err := m.guard.do(ctx, op, func(ctx context.Context) error {
		var err error
		total, err = m.Contents.CountDocuments(ctx, filter)
		if err != nil {
			return err
		}
		opts := options.Find().SetSort(sort).SetSkip(int64(page.Offset()))
		if page.Limit > 0 {
			opts.SetLimit(int64(page.Limit))
		}
		cursor, err := m.Contents.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		contents = make([]*models.Content, 0, page.Limit)
		for cursor.Next(ctx) {
			var doc ContentDocument
			if err := cursor.Decode(&doc); err != nil {
				return err
			}
			c, err := documentToContent(&doc)
			if err != nil {
				return err
			}
			contents = append(contents, c)
		}
		return cursor.Err()
	})
	return contents, total, err
}

func (m *MongoDB) ListComments(ctx context.Context, parentID uuid.UUID, page models.Page) ([]*models.Content, int64, error) {
	direction := 1
	if page.Sort == models.SortDesc {
		direction = -1
	}
	return m.listContents(ctx, "list comments",
		bson.M{"parentId": parentID.String()},
		bson.D{{Key: "createdAt", Value: direction}, {Key: "_id", Value: direction}},
		page)
}

func (m *MongoDB) ListPostsByAuthor(ctx context.Context, authorID uuid.UUID, page models.Page) ([]*models.Content, int64, error) {
	return m.listContents(ctx, "list posts by author",
		bson.M{"authorId": authorID.String(), "isRoot": true},
		bson.D{{Key: "sticky", Value: -1}, {Key: "createdAt", Value: -1}},
		page)
}

func (m *MongoDB) ListPostsByCategory(ctx context.Context, categoryID string, page models.Page) ([]*models.Content, int64, error) {
	return m.listContents(ctx, "list posts by category",
		bson.M{"categoryId": categoryID, "isRoot": true},
		bson.D{{Key: "sticky", Value: -1}, {Key: "createdAt", Value: -1}},
		page)
}

func (m *MongoDB) CountComments(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var n int64
	err := m.guard.do(ctx, "count comments", func(ctx context.Context) error {
		var err error
		n, err = m.Contents.CountDocuments(ctx, bson.M{"parentId": parentID.String()})
		return err
	})
	return n, err
}

// clampedInc builds {$max: [0, {$add: ["$field", delta]}]} for a pipeline update.
func clampedInc(field string, delta int64) bson.D {
	return bson.D{{Key: "$max", Value: bson.A{
		int64(0),
		bson.D{{Key: "$add", Value: bson.A{"$" + field, delta}}},
	}}}
}

// ApplyCounterDelta uses a pipeline update so the increment and the floor at
// zero happen in the same single-document write.
func (m *MongoDB) ApplyCounterDelta(ctx context.Context, id uuid.UUID, delta models.CounterDelta) (models.Counters, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "upvotes", Value: clampedInc("upvotes", delta.Upvotes)},
			{Key: "downvotes", Value: clampedInc("downvotes", delta.Downvotes)},
			{Key: "commentCount", Value: clampedInc("commentCount", delta.CommentCount)},
		}}},
	}
	content, err := m.findOneAndUpdate(ctx, "apply counter delta", id, update)
	if err != nil {
		return models.Counters{}, err
	}
	return content.Counters(), nil
}

func (m *MongoDB) SetCounters(ctx context.Context, id uuid.UUID, counters models.Counters) error {
	update := bson.M{"$set": bson.M{
		"upvotes":      counters.Upvotes,
		"downvotes":    counters.Downvotes,
		"commentCount": counters.CommentCount,
	}}
	_, err := m.findOneAndUpdate(ctx, "set counters", id, update)
	return err
}
