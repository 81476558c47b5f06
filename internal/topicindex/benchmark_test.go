package topicindex

import (
	"context"
	"fmt"
	"testing"

	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
)

// BenchmarkInMemoryTopicIndex_Subscribe measures subscription performance
func BenchmarkInMemoryTopicIndex_Subscribe(b *testing.B) {
	idx := NewInMemoryTopicIndex()
	defer idx.Close()
	ctx := context.Background()

	subscribers := make([]*topicindex.BufferSubscriber, b.N)
	for i := 0; i < b.N; i++ {
		subscribers[i] = topicindex.NewBufferSubscriber(fmt.Sprintf("conn-%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := idx.Subscribe(ctx, "orders/+/created", subscribers[i]); err != nil {
			b.Fatalf("Subscribe failed: %v", err)
		}
	}
}

// BenchmarkInMemoryTopicIndex_PublishWildcards measures matching across a mixed filter set
func BenchmarkInMemoryTopicIndex_PublishWildcards(b *testing.B) {
	idx := NewInMemoryTopicIndex()
	defer idx.Close()
	ctx := context.Background()

	const numTopics = 100
	for i := 0; i < numTopics; i++ {
		sub := topicindex.NewBufferSubscriber(fmt.Sprintf("conn-%d", i))
		idx.Subscribe(ctx, fmt.Sprintf("region/%d/orders", i), sub)
		idx.Subscribe(ctx, fmt.Sprintf("region/%d/#", i), sub)
	}
	idx.Subscribe(ctx, "region/+/orders", topicindex.NewBufferSubscriber("plus"))

	payload := []byte("order")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Publish(ctx, fmt.Sprintf("region/%d/orders", i%numTopics), payload); err != nil {
			b.Fatalf("Publish failed: %v", err)
		}
	}
}

// BenchmarkInMemoryTopicIndex_ConcurrentPublish measures publish throughput under the read lock
func BenchmarkInMemoryTopicIndex_ConcurrentPublish(b *testing.B) {
	idx := NewInMemoryTopicIndex()
	defer idx.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		idx.Subscribe(ctx, "metrics/+", topicindex.NewBufferSubscriber(fmt.Sprintf("conn-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := idx.Publish(ctx, "metrics/cpu", nil); err != nil {
				b.Fatalf("Publish failed: %v", err)
			}
		}
	})
}
