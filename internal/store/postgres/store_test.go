package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/newsgrid/harvester/internal/pipeline"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "articles", nil)
	require.NoError(t, err)
	return store, mock
}

func sampleArticle() pipeline.Article {
	meta := pipeline.Metadata{Title: "Example Headline", Description: "desc"}
	return pipeline.Article{
		ID:       "item-1",
		URL:      "https://example.com/a",
		Source:   "example",
		Category: "news",
		Priority: pipeline.PriorityHigh,
		Metadata: &meta,
		Technical: pipeline.TechnicalMetadata{
			URLHash:        "abc123",
			ScrapedDate:    time.Unix(1700000000, 0).UTC(),
			ScrapingMethod: pipeline.MethodStatic,
			Status:         pipeline.StatusSuccess,
			ProcessingTime: 0.42,
			RetryCount:     1,
		},
	}
}

func expectUpsert(t *testing.T, mock pgxmock.PgxPoolIface, a pipeline.Article) {
	t.Helper()
	metaJSON, err := json.Marshal(a.Metadata)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(
			a.ID,
			a.URL,
			a.Source,
			a.Category,
			string(a.Priority),
			a.Technical.URLHash,
			a.Technical.ScrapedDate,
			string(a.Technical.ScrapingMethod),
			string(a.Technical.Status),
			a.Technical.ErrorMessage,
			a.Technical.ProcessingTime,
			a.Technical.RetryCount,
			metaJSON,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestUpsertInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	article := sampleArticle()
	expectUpsert(t, mock, article)

	require.NoError(t, store.Upsert(context.Background(), article))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSameHashTwice(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	article := sampleArticle()

	expectUpsert(t, mock, article)
	article.Technical.RetryCount = 2
	article.Technical.Status = pipeline.StatusFailed
	expectUpsert(t, mock, article)

	first := sampleArticle()
	require.NoError(t, store.Upsert(context.Background(), first))
	require.NoError(t, store.Upsert(context.Background(), article))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRequiresHash(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	article := sampleArticle()
	article.Technical.URLHash = ""

	require.Error(t, store.Upsert(context.Background(), article))
}

func articleRows(t *testing.T, articles ...pipeline.Article) *pgxmock.Rows {
	t.Helper()
	rows := pgxmock.NewRows(articleColumns)
	for _, a := range articles {
		metaJSON, err := json.Marshal(a.Metadata)
		require.NoError(t, err)
		rows.AddRow(
			a.ID,
			a.URL,
			a.Source,
			a.Category,
			string(a.Priority),
			a.Technical.URLHash,
			a.Technical.ScrapedDate,
			string(a.Technical.ScrapingMethod),
			string(a.Technical.Status),
			a.Technical.ErrorMessage,
			a.Technical.ProcessingTime,
			a.Technical.RetryCount,
			metaJSON,
		)
	}
	return rows
}

func TestFindByHashRoundTrips(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	want := sampleArticle()

	mock.ExpectQuery("SELECT .+ FROM articles").
		WithArgs(want.Technical.URLHash).
		WillReturnRows(articleRows(t, want))

	got, err := store.FindByHash(context.Background(), want.Technical.URLHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, want, *got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByHashMissingReturnsNil(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM articles").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.FindByHash(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindByIDMissingReturnsNil(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM articles").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindByStatusReturnsNewestFirst(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	newer := sampleArticle()
	newer.Technical.Status = pipeline.StatusFailed
	older := sampleArticle()
	older.ID = "item-2"
	older.Technical.URLHash = "def456"
	older.Technical.Status = pipeline.StatusFailed
	older.Technical.ScrapedDate = newer.Technical.ScrapedDate.Add(-time.Hour)

	mock.ExpectQuery("SELECT .+ FROM articles WHERE status = .+ ORDER BY scraped_date DESC").
		WithArgs(string(pipeline.StatusFailed)).
		WillReturnRows(articleRows(t, newer, older))

	got, err := store.FindByStatus(context.Background(), pipeline.StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "item-1", got[0].ID)
	require.Equal(t, "item-2", got[1].ID)
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"total", "success", "failed", "pending"}).
			AddRow(int64(10), int64(7), int64(2), int64(1)))

	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 10, stats.Total)
	require.EqualValues(t, 7, stats.Success)
	require.EqualValues(t, 2, stats.Failed)
	require.EqualValues(t, 1, stats.Pending)
	require.InDelta(t, 70.0, stats.SuccessRate, 0.001)
}

func TestStatisticsEmptyStore(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"total", "success", "failed", "pending"}).
			AddRow(int64(0), int64(0), int64(0), int64(0)))

	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.SuccessRate)
}

func TestMigrateCreatesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS articles").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	for _, idx := range []string{"category", "source", "priority", "status_listing"} {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS articles_" + idx + "_idx").
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "articles", nil)
	require.NoError(t, err)

	mock.ExpectPing()
	require.True(t, store.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(pgx.ErrTxClosed)
	require.False(t, store.HealthCheck(context.Background()))
}

func TestNewWithPoolRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "articles; DROP TABLE", nil)
	require.Error(t, err)
}
