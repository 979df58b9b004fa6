package notify

import (
	"context"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/scheduler"
	"github.com/Azelphur/Monord/internal/transport"
)

// DeletionSource feeds the embed-deletion scheduler: embeds whose
// delete_at has passed get their message removed and their record
// dropped.
type DeletionSource struct {
	svc *Service
}

func NewDeletionSource(svc *Service) *DeletionSource {
	return &DeletionSource{svc: svc}
}

func (d *DeletionSource) Next(ctx context.Context) (*scheduler.Item, error) {
	e, err := d.svc.embeds.NextDeletion(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return &scheduler.Item{ID: e.ID, At: *e.DeleteAt}, nil
}

func (d *DeletionSource) Fire(ctx context.Context, item scheduler.Item) error {
	e, err := d.svc.embeds.GetByID(ctx, item.ID)
	if err != nil {
		return err
	}
	if e == nil || e.DeleteAt == nil {
		// Superseded or rescheduled since Next.
		return nil
	}
	if e.DeleteAt.After(d.svc.now()) {
		return nil
	}
	if err := d.svc.wait(ctx); err != nil {
		return err
	}
	err = d.svc.adapter.DeleteMessage(ctx, transport.MessageRef{
		ChatID: e.ChatID, ThreadID: e.ThreadID, MessageID: e.MessageID,
	})
	if err != nil {
		// Message already gone is fine; the record goes either way.
		d.svc.log.Debug("scheduled message delete failed",
			logx.Int64("embed_id", e.ID), logx.Int64("chat_id", e.ChatID), logx.Any("err", err))
	}
	return d.svc.embeds.Delete(ctx, e.ID)
}
