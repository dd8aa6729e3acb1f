package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

func sampleResult() crawler.CrawlResult {
	started := time.Unix(1700000000, 0).UTC()
	return crawler.CrawlResult{
		RunID:       "2025-01-02_03-04-05.000006",
		DomainLabel: "example.com",
		OutputDir:   "/screens/example.com/2025-01-02_03-04-05.000006/desktop",
		SeedURL:     "https://example.com/",
		Device:      crawler.DeviceDesktop,
		Status:      crawler.StatusCompleted,
		Manifest: crawler.Manifest{
			{Path: "example.com/r/desktop/main_page_desktop.png", URL: "https://example.com/", Device: crawler.DeviceDesktop, CapturedAt: started},
			{Path: "example.com/r/desktop/screen_1_desktop.png", URL: "https://example.com/a", Device: crawler.DeviceDesktop, CapturedAt: started, RemoteURI: "gs://b/x"},
		},
		Failures:   []crawler.LinkFailure{{URL: "https://example.com/b", Stage: crawler.StageNavigate, Error: "timeout"}},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
}

func TestRecordRunInsertsRunAndArtifacts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "", "")
	require.NoError(t, err)
	res := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO capture_runs").
		WithArgs(
			res.RunID,
			"job-1",
			res.DomainLabel,
			res.SeedURL,
			"desktop",
			"completed",
			"",
			res.OutputDir,
			2,
			[]byte(`[{"url":"https://example.com/b","stage":"navigate","error":"timeout"}]`),
			res.StartedAt,
			res.FinishedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for i, a := range res.Manifest {
		mock.ExpectExec("INSERT INTO capture_artifacts").
			WithArgs(res.RunID, i, a.Path, a.URL, "desktop", a.CapturedAt, a.RemoteURI, a.SHA256).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.RecordRun(context.Background(), "job-1", res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunRollsBackOnArtifactFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "runs", "artifacts")
	require.NoError(t, err)
	res := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO artifacts").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.RecordRun(context.Background(), "", res)
	require.ErrorContains(t, err, "insert artifact 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunRequiresRunID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "", "")
	require.NoError(t, err)
	require.Error(t, store.RecordRun(context.Background(), "job", crawler.CrawlResult{}))
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "", "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS capture_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS capture_artifacts").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x", "")
	require.Error(t, err)
	_, err = NewRunStoreWithPool(nil, "", "")
	require.Error(t, err)
	_, err = NewRunStore(context.Background(), RunStoreConfig{})
	require.ErrorContains(t, err, "db.dsn")
}
