package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
)

const batch = "Company,Warehouse,Date,SKU,Sales,SOH,Open_PO,Open_SO,Promotion,Festival,Min_Days,Max_Days\n" +
	"Acme,WH1,2024-01-01,A1,10,50,20,10,NO,NO,1,3\n" +
	"Acme,WH1,2024-01-01,B2,10,,20,10,NO,NO,1,3\n" +
	"Acme,WH1,2024-01-01,C3,10,500,0,0,NO,NO,1,3\n"

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memoryObjects) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) DownloadObject(ctx context.Context, key, destPath string) error {
	return os.WriteFile(destPath, m.objects[key], 0o644)
}

func (m *memoryObjects) UploadObject(ctx context.Context, key string, data []byte) error {
	m.objects[key] = data
	return nil
}

type memoryDrive map[string]string

func (d memoryDrive) FetchCSV(ctx context.Context, fileID string) ([]byte, error) {
	body, ok := d[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return []byte(body), nil
}

type recordingRuns struct {
	saved []*domain.RunReport
	err   error
}

func (r *recordingRuns) SaveRun(ctx context.Context, rep *domain.RunReport) error {
	r.saved = append(r.saved, rep)
	return r.err
}

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) InvalidateAll(ctx context.Context) error {
	c.calls++
	return c.err
}

func newService(deps Dependencies) *ReplenishService {
	forecaster := pipeline.ForecasterFunc(func(ctx context.Context, s domain.Series, h int) (float64, error) {
		return 100 * float64(h), nil
	})
	deps.Orchestrator = pipeline.NewOrchestrator(forecaster, nil, pipeline.DefaultOrchestratorConfig())
	return NewReplenishService(deps, 1)
}

func TestRunFromReader(t *testing.T) {
	runs := &recordingRuns{}
	svc := newService(Dependencies{Runs: runs})

	rep, err := svc.Run(context.Background(), RunRequest{Source: "upload.csv", Input: strings.NewReader(batch)})
	require.NoError(t, err)
	require.NotEmpty(t, rep.RunID)
	require.Equal(t, 1, rep.HorizonDays)
	require.Equal(t, domain.ValidationCounts{Total: 3, Valid: 2, Malformed: 1}, rep.Validation)
	require.Len(t, rep.Malformed, 1)
	require.Len(t, rep.Summary.Rows, 2)
	require.InDelta(t, 240.0, rep.Summary.Rows[0].ProcurementQty, 1e-9)
	require.Zero(t, rep.Summary.Rows[1].ProcurementQty)
	require.False(t, rep.CompletedAt.Before(rep.StartedAt))

	require.Len(t, runs.saved, 1)
	require.Equal(t, rep.RunID, runs.saved[0].RunID)
}

func TestRunAuditFailureIsNotFatal(t *testing.T) {
	svc := newService(Dependencies{Runs: &recordingRuns{err: errors.New("db down")}})
	rep, err := svc.Run(context.Background(), RunRequest{Source: "upload.csv", Input: strings.NewReader(batch)})
	require.NoError(t, err)
	require.Len(t, rep.Summary.Rows, 2)
}

func TestRunFromLocalFileWritesOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(in, []byte(batch), 0o644))
	out := filepath.Join(dir, "out", "summary.csv")

	rep, err := newService(Dependencies{}).Run(context.Background(), RunRequest{Source: in, HorizonDays: 2, OutputPath: out})
	require.NoError(t, err)
	require.Equal(t, 2, rep.HorizonDays)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(written)), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[1], "A1,"))
}

func TestRunFromObjectStorageAndUpload(t *testing.T) {
	objects := &memoryObjects{objects: map[string][]byte{"inbox/sales.csv": []byte(batch)}}
	svc := newService(Dependencies{Objects: objects})

	rep, err := svc.Run(context.Background(), RunRequest{Source: "s3://inbox/sales.csv", UploadKey: "outbox/summary.csv"})
	require.NoError(t, err)
	require.Len(t, rep.Summary.Rows, 2)
	require.Contains(t, string(objects.objects["outbox/summary.csv"]), "Procurement Qty")
}

func TestRunFromDrive(t *testing.T) {
	svc := newService(Dependencies{Drive: memoryDrive{"file-1": batch}})
	rep, err := svc.Run(context.Background(), RunRequest{Source: "drive://file-1"})
	require.NoError(t, err)
	require.Equal(t, "drive://file-1", rep.Source)
	require.Len(t, rep.Summary.Rows, 2)
}

func TestRunRejectsUnconfiguredSources(t *testing.T) {
	svc := newService(Dependencies{})

	_, err := svc.Run(context.Background(), RunRequest{Source: "s3://x.csv"})
	require.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = svc.Run(context.Background(), RunRequest{Source: "drive://abc"})
	require.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = svc.Run(context.Background(), RunRequest{})
	require.Error(t, err)

	_, err = svc.Run(context.Background(), RunRequest{Source: filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)

	_, err = svc.Run(context.Background(), RunRequest{Source: "x.csv", Input: strings.NewReader(batch), UploadKey: "out.csv"})
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestRunFailsWithoutValidRows(t *testing.T) {
	body := "Company,Warehouse,Date,SKU,Sales,SOH,Open_PO,Open_SO,Promotion,Festival,Min_Days,Max_Days\n" +
		"Acme,WH1,2024-01-01,A1,10,,20,10,NO,NO,1,3\n"
	forecastCalled := false
	forecaster := pipeline.ForecasterFunc(func(ctx context.Context, s domain.Series, h int) (float64, error) {
		forecastCalled = true
		return 1, nil
	})
	svc := NewReplenishService(Dependencies{
		Orchestrator: pipeline.NewOrchestrator(forecaster, nil, pipeline.DefaultOrchestratorConfig()),
	}, 1)

	_, err := svc.Run(context.Background(), RunRequest{Source: "x.csv", Input: strings.NewReader(body)})
	require.ErrorIs(t, err, pipeline.ErrNoValidRows)
	require.False(t, forecastCalled)
}

func TestRunRefreshesForecastCacheOnRequest(t *testing.T) {
	forecasts := &countingInvalidator{}
	svc := newService(Dependencies{Forecasts: forecasts})

	_, err := svc.Run(context.Background(), RunRequest{Source: "upload.csv", Input: strings.NewReader(batch)})
	require.NoError(t, err)
	require.Zero(t, forecasts.calls)

	_, err = svc.Run(context.Background(), RunRequest{Source: "upload.csv", Input: strings.NewReader(batch), RefreshForecasts: true})
	require.NoError(t, err)
	require.Equal(t, 1, forecasts.calls)

	forecasts.err = errors.New("redis down")
	rep, err := svc.Run(context.Background(), RunRequest{Source: "upload.csv", Input: strings.NewReader(batch), RefreshForecasts: true})
	require.NoError(t, err)
	require.Len(t, rep.Summary.Rows, 2)
	require.ErrorContains(t, svc.RefreshForecasts(context.Background()), "redis down")

	require.NoError(t, newService(Dependencies{}).RefreshForecasts(context.Background()))
}

func TestRunPlacesRelativeOutputUnderOutputDir(t *testing.T) {
	dir := t.TempDir()
	svc := newService(Dependencies{OutputDir: dir})

	_, err := svc.Run(context.Background(), RunRequest{Source: "upload.csv", Input: strings.NewReader(batch), OutputPath: "daily/summary.csv"})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "daily", "summary.csv"))
	require.NoError(t, err)

	abs := filepath.Join(t.TempDir(), "summary.csv")
	_, err = svc.Run(context.Background(), RunRequest{Source: "upload.csv", Input: strings.NewReader(batch), OutputPath: abs})
	require.NoError(t, err)
	_, err = os.Stat(abs)
	require.NoError(t, err)
}
