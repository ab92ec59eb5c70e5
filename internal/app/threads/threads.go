// Package threads derives one-hop reply sets and the labels shown for a
// reply's parent message.
package threads

import (
	"iter"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

// Labels rendered for reply parents
const (
	ReplyPrefix    = "Ответ на: "
	FallbackParent = "Сообщение"
	Tombstone      = "Сообщение удалено"
)

// Entry is one reply with the label of the message it answers
type Entry struct {
	Message     *models.Message
	ParentLabel string
}

// Replies yields the messages whose ReplyTo equals parentID, in the order of
// messages. The parent itself is never yielded and replies of replies are
// not followed.
func Replies(messages []*models.Message, parentID string) iter.Seq[*models.Message] {
	return func(yield func(*models.Message) bool) {
		if parentID == "" {
			return
		}
		for _, m := range messages {
			if m.ID == parentID || m.ReplyTo != parentID {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

// Open yields the thread of parentID with the parent label resolved once.
// A parent missing from messages renders the tombstone.
func Open(messages []*models.Message, parentID string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		label := ParentLabel(messages, parentID)
		for m := range Replies(messages, parentID) {
			if !yield(Entry{Message: m, ParentLabel: label}) {
				return
			}
		}
	}
}

// ParentLabel finds parentID among messages and labels it
func ParentLabel(messages []*models.Message, parentID string) string {
	for _, m := range messages {
		if m.ID == parentID {
			return Label(m)
		}
	}
	return Tombstone
}

// Label renders the reply header for a parent message. A nil parent is a
// deleted one.
func Label(parent *models.Message) string {
	switch {
	case parent == nil:
		return Tombstone
	case parent.Text != "":
		return ReplyPrefix + parent.Text
	case parent.File != nil && parent.File.OriginalName != "":
		return ReplyPrefix + parent.File.OriginalName
	default:
		return ReplyPrefix + FallbackParent
	}
}

// CheckReply rejects a message that replies to itself
func CheckReply(id, replyTo string) error {
	if replyTo != "" && replyTo == id {
		return apperrors.ErrReplyCycle
	}
	return nil
}
