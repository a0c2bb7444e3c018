package forum

import (
	"kick-haven/internal/models"

	"github.com/google/uuid"
)

// Event types pushed to realtime subscribers.
const (
	EventVote           = "vote"
	EventCommentCreated = "comment_created"
	EventCommentDeleted = "comment_deleted"
	EventPostDeleted    = "post_deleted"
	EventReply          = "reply"
)

// Event describes a change other clients may want to render. A nil
// Recipient means broadcast.
type Event struct {
	Type      string          `json:"type"`
	TargetID  uuid.UUID       `json:"targetId"`
	ParentID  *uuid.UUID      `json:"parentId,omitempty"`
	Counters  models.Counters `json:"counters"`
	Content   *models.Content `json:"content,omitempty"`
	ActorName string          `json:"actorName,omitempty"`
	Recipient *uuid.UUID      `json:"-"`
}

// Publisher delivers events, typically to websocket clients. Publish must not
// block the request path.
type Publisher interface {
	Publish(event Event)
}

// Reconciler is told about targets whose counters may have drifted.
type Reconciler interface {
	MarkDirty(targetID uuid.UUID)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

type noopReconciler struct{}

func (noopReconciler) MarkDirty(uuid.UUID) {}
