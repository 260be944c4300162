package kafka

import (
	"context"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// fakeClient is an in-memory Client. Fetches pushed on polls are returned
// one per PollFetches call; closing polls ends the stream.
type fakeClient struct {
	polls chan kgo.Fetches

	mu         sync.Mutex
	added      []string
	purged     []string
	committed  []*kgo.Record
	commitAll  int
	paused     map[string][]int32
	produced   []*kgo.Record
	produceErr error
	closed     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{polls: make(chan kgo.Fetches, 8), paused: map[string][]int32{}}
}

func (f *fakeClient) AddConsumeTopics(topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, topics...)
}

func (f *fakeClient) PurgeTopicsFromClient(topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, topics...)
}

func (f *fakeClient) PollFetches(ctx context.Context) kgo.Fetches {
	select {
	case fs, ok := <-f.polls:
		if !ok {
			return kgo.NewErrFetch(kgo.ErrClientClosed)
		}
		return fs
	case <-ctx.Done():
		return kgo.NewErrFetch(ctx.Err())
	}
}

func (f *fakeClient) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, rs...)
	return nil
}

func (f *fakeClient) CommitUncommittedOffsets(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitAll++
	return nil
}

func (f *fakeClient) PauseFetchPartitions(tps map[string][]int32) map[string][]int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for t, ps := range tps {
		f.paused[t] = append(f.paused[t], ps...)
	}
	out := make(map[string][]int32, len(f.paused))
	for t, ps := range f.paused {
		out[t] = append([]int32(nil), ps...)
	}
	return out
}

func (f *fakeClient) ResumeFetchPartitions(tps map[string][]int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for t := range tps {
		delete(f.paused, t)
	}
}

func (f *fakeClient) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.mu.Lock()
	f.produced = append(f.produced, r)
	err := f.produceErr
	f.mu.Unlock()
	promise(r, err)
}

func (f *fakeClient) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results kgo.ProduceResults
	for _, r := range rs {
		f.produced = append(f.produced, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.produceErr})
	}
	return results
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func fetchOf(topic string, partition int32, records ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      topic,
		Partitions: []kgo.FetchPartition{{Partition: partition, Records: records}},
	}}}}
}

func errFetchOf(topic string, partition int32, err error) kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      topic,
		Partitions: []kgo.FetchPartition{{Partition: partition, Err: err}},
	}}}}
}
