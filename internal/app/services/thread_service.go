package services

import (
	"context"
	"iter"

	"github.com/yigit/educhat/internal/app/threads"
)

// ThreadService opens the one-hop reply thread of a message
type ThreadService interface {
	// OpenThread yields the direct replies of messageID with their parent
	// label. A deleted parent is labelled with the tombstone, not an error.
	OpenThread(ctx context.Context, chatID, messageID, actor string) (iter.Seq[threads.Entry], string, error)
}

type threadServiceImpl struct {
	messages MessageService
}

// NewThreadService creates a new ThreadService
func NewThreadService(messages MessageService) ThreadService {
	return &threadServiceImpl{messages: messages}
}

// OpenThread snapshots the chat and resolves the thread over it
func (s *threadServiceImpl) OpenThread(ctx context.Context, chatID, messageID, actor string) (iter.Seq[threads.Entry], string, error) {
	messages, err := s.messages.List(ctx, chatID, actor)
	if err != nil {
		return nil, "", err
	}
	return threads.Open(messages, messageID), threads.ParentLabel(messages, messageID), nil
}
