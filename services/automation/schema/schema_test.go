package schema

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls  int32
	fields []FieldSchema
	delay  time.Duration
}

func (f *countingFetcher) FetchFields(ctx context.Context, projectKey string) ([]FieldSchema, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.fields, nil
}

func testFields() []FieldSchema {
	return []FieldSchema{
		{ID: "customfield_10001", Name: "story_points", Type: TypeNumber, Required: true},
		{ID: "customfield_10002", Name: "priority", Type: TypeOption, AllowedValues: []string{"low", "high"}},
	}
}

func TestCache_GetField_ByIDAndName(t *testing.T) {
	fetcher := &countingFetcher{fields: testFields()}
	c := New(fetcher, time.Minute)

	byID, err := c.GetField(context.Background(), "customfield_10001", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "story_points", byID.Name)

	byName, err := c.GetField(context.Background(), "priority", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "customfield_10002", byName.ID)

	assert.EqualValues(t, 1, fetcher.calls)
}

func TestCache_TTLExpiry(t *testing.T) {
	fetcher := &countingFetcher{fields: testFields()}
	c := New(fetcher, 10*time.Millisecond)

	_, err := c.GetField(context.Background(), "priority", "ACME")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.GetField(context.Background(), "priority", "ACME")
	require.NoError(t, err)

	assert.EqualValues(t, 2, fetcher.calls)
}

func TestCache_SingleFlight(t *testing.T) {
	fetcher := &countingFetcher{fields: testFields(), delay: 30 * time.Millisecond}
	c := New(fetcher, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetField(context.Background(), "priority", "ACME")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fetcher.calls)
}

func TestCache_Validate(t *testing.T) {
	fetcher := &countingFetcher{fields: testFields()}
	c := New(fetcher, time.Minute)
	ctx := context.Background()

	assert.NoError(t, c.Validate(ctx, "story_points", "ACME", 5))
	assert.Error(t, c.Validate(ctx, "story_points", "ACME", nil))
	assert.Error(t, c.Validate(ctx, "story_points", "ACME", "not-a-number"))

	assert.NoError(t, c.Validate(ctx, "priority", "ACME", "low"))
	assert.Error(t, c.Validate(ctx, "priority", "ACME", "urgent"))
}
