package forum

import (
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
)

// Identity is the caller as resolved by the identity provider.
type Identity struct {
	ID   uuid.UUID
	Name string
}

// IsZero reports whether no caller was resolved.
func (i Identity) IsZero() bool {
	return i.ID == uuid.Nil
}

func contentNoun(c *models.Content) string {
	if c.IsRoot {
		return "post"
	}
	return "comment"
}

// requireIdentity rejects anonymous callers with message.
func requireIdentity(caller Identity, message string) error {
	if caller.IsZero() {
		return utils.NewUnauthenticatedError(message)
	}
	return nil
}

// isOwner matches on authorId. authorName is only consulted for records that
// carry no author id.
func isOwner(caller Identity, c *models.Content) bool {
	if c.AuthorID != uuid.Nil {
		return c.AuthorID == caller.ID
	}
	return c.AuthorName != "" && c.AuthorName == caller.Name
}

// authorizeEdit allows only the author, and only while the record is unlocked.
func authorizeEdit(caller Identity, c *models.Content) error {
	if !isOwner(caller, c) {
		return utils.NewForbiddenError("You can only edit your own " + contentNoun(c) + ".")
	}
	if c.Locked {
		return utils.NewForbiddenError("Cannot edit a locked " + contentNoun(c) + ".")
	}
	return nil
}

func authorizeDelete(caller Identity, c *models.Content) error {
	if !isOwner(caller, c) {
		return utils.NewForbiddenError("You can only delete your own " + contentNoun(c) + ".")
	}
	return nil
}

// authorizeVote has no ownership check; a locked target refuses everyone.
func authorizeVote(c *models.Content) error {
	if c.Locked {
		return utils.NewForbiddenError("Cannot vote on a locked post/comment.")
	}
	return nil
}

func authorizeComment(parent *models.Content) error {
	if !parent.IsRoot {
		return utils.NewInvalidArgumentError("Comments can only be added to a post.")
	}
	if parent.Locked {
		return utils.NewForbiddenError("Cannot comment on a locked post.")
	}
	return nil
}
