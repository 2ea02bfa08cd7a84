package queue

import (
	"context"

	"github.com/redis/go-redis/v9"

	"imagehive/internal/apperr"
	"imagehive/internal/models"
)

// Message kinds carried on the stream.
const (
	KindDerive = "derive"
	KindSweep  = "sweep"
)

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// EnqueueDerive hands a job descriptor to the broker. The call returns
// once the broker accepts the entry; failures must surface to the HTTP
// caller, never be dropped.
func (p *Producer) EnqueueDerive(ctx context.Context, desc models.JobDescriptor) error {
	payload, err := desc.Encode()
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"kind":    KindDerive,
			"payload": string(payload),
		},
	}).Err()
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "enqueue job", err)
	}
	return nil
}

func (p *Producer) EnqueueSweep(ctx context.Context) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"kind": KindSweep},
	}).Err()
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "enqueue sweep", err)
	}
	return nil
}
