package registry

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/cache"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/metrics"
	"github.com/saiset-co/sai-org-registry/types"
)

// countingRepository counts reads that reach storage.
type countingRepository struct {
	*SQLiteRepository
	listPeople atomic.Int32
	getPerson  atomic.Int32
	search     atomic.Int32
	statistics atomic.Int32
}

func (c *countingRepository) ListPeople(ctx context.Context, page Page) ([]Person, error) {
	c.listPeople.Add(1)
	return c.SQLiteRepository.ListPeople(ctx, page)
}

func (c *countingRepository) GetPerson(ctx context.Context, id int64) (Person, error) {
	c.getPerson.Add(1)
	return c.SQLiteRepository.GetPerson(ctx, id)
}

func (c *countingRepository) SearchPeople(ctx context.Context, q string, limit int) ([]Person, error) {
	c.search.Add(1)
	return c.SQLiteRepository.SearchPeople(ctx, q, limit)
}

func (c *countingRepository) Statistics(ctx context.Context) (Statistics, error) {
	c.statistics.Add(1)
	return c.SQLiteRepository.Statistics(ctx)
}

func newTestService(t *testing.T, withStrategies bool) (*Service, *countingRepository, types.CacheStore) {
	t.Helper()

	nop := logger.NewNop()
	store := cache.NewMemoryStore(nop, &types.CacheConfig{Type: "memory", MaxSize: 100})
	invalidator := cache.NewTagInvalidator(store, nop)
	memo := cache.NewMemoizer(store, invalidator, nop, metrics.NewNop(nop))

	var strategies *cache.InvalidationStrategies
	if withStrategies {
		strategies = cache.NewInvalidationStrategies(invalidator)
	}

	repo := &countingRepository{SQLiteRepository: newTestRepository(t)}
	return NewService(repo, memo, strategies, nop), repo, store
}

func TestServiceMemoizesReads(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.ListPeople(ctx, Page{Limit: 10})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), repo.listPeople.Load())

	_, err := svc.ListPeople(ctx, Page{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.listPeople.Load())

	// normalized pages share a key
	_, err = svc.ListPeople(ctx, Page{Limit: 0})
	require.NoError(t, err)
	_, err = svc.ListPeople(ctx, Page{Limit: DefaultPageLimit})
	require.NoError(t, err)
	assert.Equal(t, int32(3), repo.listPeople.Load())
}

func TestServiceCreateInvalidatesListsAndStatistics(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	ctx := context.Background()

	people, err := svc.ListPeople(ctx, Page{})
	require.NoError(t, err)
	assert.Empty(t, people)
	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.People)

	_, err = svc.CreatePerson(ctx, PersonInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)

	people, err = svc.ListPeople(ctx, Page{})
	require.NoError(t, err)
	assert.Len(t, people, 1)
	assert.Equal(t, int32(2), repo.listPeople.Load())

	stats, err = svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.People)
	assert.Equal(t, int32(2), repo.statistics.Load())
}

func TestServiceUpdateInvalidatesPersonEntry(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	ctx := context.Background()

	created, err := svc.CreatePerson(ctx, PersonInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = svc.GetPerson(ctx, created.ID)
	require.NoError(t, err)
	_, err = svc.GetPerson(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.getPerson.Load())

	_, err = svc.UpdatePerson(ctx, created.ID, PersonInput{FirstName: "Ada", LastName: "King", Email: "ada@example.com"})
	require.NoError(t, err)

	got, err := svc.GetPerson(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "King", got.LastName)
}

func TestServiceFailedWriteKeepsCache(t *testing.T) {
	svc, repo, store := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.CreatePerson(ctx, PersonInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = svc.SearchPeople(ctx, "ada", 10)
	require.NoError(t, err)
	before := store.Stats().Entries

	_, err = svc.CreatePerson(ctx, PersonInput{FirstName: "Dup", LastName: "Dup", Email: "ada@example.com"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, before, store.Stats().Entries)

	_, err = svc.SearchPeople(ctx, "ada", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.search.Load())
}

func TestServiceErrorsAreNotCached(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.GetPerson(ctx, 42)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	_, err = svc.GetPerson(ctx, 42)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	assert.Equal(t, int32(2), repo.getPerson.Load())
}

func TestServiceWithoutStrategiesServesCachedReads(t *testing.T) {
	svc, repo, _ := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.ListPeople(ctx, Page{})
	require.NoError(t, err)
	_, err = svc.CreatePerson(ctx, PersonInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)

	people, err := svc.ListPeople(ctx, Page{})
	require.NoError(t, err)
	assert.Empty(t, people)
	assert.Equal(t, int32(1), repo.listPeople.Load())
}
