package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"golang.org/x/sync/errgroup"

	"trello-api/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueuePublisher forwards change events to an Azure storage queue.
type QueuePublisher struct {
	queue       queueClient
	concurrency int
}

// NewQueuePublisher connects to the named queue. concurrency bounds the number
// of in-flight enqueue calls per Publish; values below one send sequentially.
func NewQueuePublisher(connStr, queueName string, concurrency int) (*QueuePublisher, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &QueuePublisher{queue: q, concurrency: concurrency}, nil
}

// Publish enqueues one message per event and returns the first failure.
func (p *QueuePublisher) Publish(ctx context.Context, events ...domain.Event) error {
	limit := p.concurrency
	if limit < 1 {
		limit = 1
	}
	messages := make([]string, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		messages[i] = string(data)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, msg := range messages {
		g.Go(func() error {
			_, err := p.queue.EnqueueMessage(gctx, msg, nil)
			return err
		})
	}
	return g.Wait()
}
