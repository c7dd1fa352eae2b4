package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor runs maintenance passes over every stored conversation.
type BatchProcessor struct {
	store         MessageStore
	conversations *ConversationService
	concurrency   int
	log           zerolog.Logger
}

func NewBatchProcessor(store MessageStore, conversations *ConversationService, concurrency int, log zerolog.Logger) *BatchProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchProcessor{
		store:         store,
		conversations: conversations,
		concurrency:   concurrency,
		log:           log.With().Str("component", "batch-processor").Logger(),
	}
}

// RetitleAll recomputes the title of every conversation from its first turn
// and returns how many were processed. The first failure cancels the rest.
func (bp *BatchProcessor) RetitleAll(ctx context.Context) (int, error) {
	convs, err := bp.store.ListConversations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)
	for _, conv := range convs {
		conv := conv
		g.Go(func() error {
			updated, err := bp.conversations.RefreshTitle(gctx, conv)
			if err != nil {
				return fmt.Errorf("retitle conversation %d: %w", conv.ID, err)
			}
			if updated.Title != conv.Title {
				bp.log.Debug().Int64("conversation_id", conv.ID).Str("title", updated.Title).Msg("title changed")
			}
			done.Add(1)
			return nil
		})
	}
	err = g.Wait()

	n := int(done.Load())
	bp.log.Info().Int("conversations", len(convs)).Int("retitled", n).Msg("retitle pass finished")
	return n, err
}
