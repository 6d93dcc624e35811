package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/report"
	"github.com/andresuchdata/autopo-replenish/internal/sheet"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
)

const (
	s3Scheme    = "s3://"
	driveScheme = "drive://"
)

// ErrSourceUnavailable is returned when a source needs a backend that is not configured.
var ErrSourceUnavailable = errors.New("input source not configured")

// DriveSource fetches a Drive file as CSV.
type DriveSource interface {
	FetchCSV(ctx context.Context, fileID string) ([]byte, error)
}

// RunStore records finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, report *domain.RunReport) error
}

// ForecastInvalidator drops memoised forecasts.
type ForecastInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Dependencies wires optional backends. Only Orchestrator is required.
// Relative output paths are placed under OutputDir when it is set.
type Dependencies struct {
	Orchestrator *pipeline.Orchestrator
	Objects      storage.ObjectStorage
	Drive        DriveSource
	Runs         RunStore
	Forecasts    ForecastInvalidator
	OutputDir    string
}

type ReplenishService struct {
	orchestrator   *pipeline.Orchestrator
	objects        storage.ObjectStorage
	drive          DriveSource
	runs           RunStore
	forecasts      ForecastInvalidator
	outputDir      string
	defaultHorizon int
}

func NewReplenishService(deps Dependencies, defaultHorizon int) *ReplenishService {
	if defaultHorizon < 1 {
		defaultHorizon = 1
	}
	return &ReplenishService{
		orchestrator:   deps.Orchestrator,
		objects:        deps.Objects,
		drive:          deps.Drive,
		runs:           deps.Runs,
		forecasts:      deps.Forecasts,
		outputDir:      deps.OutputDir,
		defaultHorizon: defaultHorizon,
	}
}

// RunRequest describes one batch. When Input is set it is read instead of resolving Source,
// and Source only names the batch in the report. RefreshForecasts drops cached
// forecasts before the batch is processed.
type RunRequest struct {
	Source           string
	Input            io.Reader
	HorizonDays      int
	SubmitOrders     bool
	RefreshForecasts bool
	OutputPath       string
	UploadKey        string
}

// Run validates the batch, runs the orchestrator and publishes the results. Unreadable
// input or a batch without a single valid row fails the whole run before any forecast.
func (s *ReplenishService) Run(ctx context.Context, req RunRequest) (*domain.RunReport, error) {
	started := time.Now().UTC()
	horizon := req.HorizonDays
	if horizon == 0 {
		horizon = s.defaultHorizon
	}

	rep := &domain.RunReport{
		RunID:       uuid.NewString(),
		Source:      req.Source,
		HorizonDays: horizon,
		OrdersSent:  req.SubmitOrders,
		StartedAt:   started,
	}
	logger := log.With().Str("run_id", rep.RunID).Str("source", req.Source).Logger()
	logger.Info().Int("horizon_days", horizon).Bool("submit_orders", req.SubmitOrders).Msg("replenishment run started")

	data, err := s.readInput(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("read input %q: %w", req.Source, err)
	}

	rows, err := pipeline.ReadRows(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse input %q: %w", req.Source, err)
	}

	validation := pipeline.Validate(rows)
	rep.Validation = validation.Counts
	rep.Malformed = validation.Malformed
	if len(validation.Valid) == 0 {
		logger.Error().Int("malformed", validation.Counts.Malformed).Msg("no valid rows, aborting run")
		return nil, pipeline.ErrNoValidRows
	}

	if req.RefreshForecasts {
		if err := s.RefreshForecasts(ctx); err != nil {
			logger.Warn().Err(err).Msg("forecast cache not refreshed")
		}
	}

	summary, err := s.orchestrator.Run(ctx, validation.Valid, pipeline.RunOptions{
		HorizonDays:  horizon,
		SubmitOrders: req.SubmitOrders,
	})
	if err != nil {
		return nil, err
	}
	rep.Summary = *summary
	rep.CompletedAt = time.Now().UTC()

	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, rep); err != nil {
			logger.Error().Err(err).Msg("failed to record run audit")
		}
	}

	if err := s.publish(ctx, rep, req); err != nil {
		return rep, err
	}

	logger.Info().Msg(report.Describe(rep))
	return rep, nil
}

// RefreshForecasts drops every cached forecast. It is a no-op without a cache.
func (s *ReplenishService) RefreshForecasts(ctx context.Context) error {
	if s.forecasts == nil {
		return nil
	}
	if err := s.forecasts.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidate forecast cache: %w", err)
	}
	log.Info().Msg("forecast cache cleared")
	return nil
}

func (s *ReplenishService) readInput(ctx context.Context, req RunRequest) ([]byte, error) {
	if req.Input != nil {
		data, err := io.ReadAll(req.Input)
		if err != nil {
			return nil, err
		}
		return sheet.Normalize(req.Source, "", data)
	}

	switch {
	case strings.HasPrefix(req.Source, s3Scheme):
		if s.objects == nil {
			return nil, fmt.Errorf("%w: object storage", ErrSourceUnavailable)
		}
		key := strings.TrimPrefix(req.Source, s3Scheme)
		obj, err := s.objects.GetObject(ctx, key)
		if err != nil {
			return nil, err
		}
		defer obj.Close()
		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, err
		}
		return sheet.Normalize(key, "", data)

	case strings.HasPrefix(req.Source, driveScheme):
		if s.drive == nil {
			return nil, fmt.Errorf("%w: google drive", ErrSourceUnavailable)
		}
		return s.drive.FetchCSV(ctx, strings.TrimPrefix(req.Source, driveScheme))

	case req.Source == "":
		return nil, errors.New("no input source given")

	default:
		data, err := os.ReadFile(req.Source)
		if err != nil {
			return nil, err
		}
		return sheet.Normalize(req.Source, "", data)
	}
}

func (s *ReplenishService) publish(ctx context.Context, rep *domain.RunReport, req RunRequest) error {
	if req.OutputPath == "" && req.UploadKey == "" {
		return nil
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, &rep.Summary); err != nil {
		return fmt.Errorf("render summary csv: %w", err)
	}

	if req.OutputPath != "" {
		path := s.outputPath(req.OutputPath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write summary %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("summary written")
	}

	if req.UploadKey != "" {
		if s.objects == nil {
			return fmt.Errorf("%w: object storage", ErrSourceUnavailable)
		}
		if err := s.objects.UploadObject(ctx, req.UploadKey, buf.Bytes()); err != nil {
			return fmt.Errorf("upload summary: %w", err)
		}
		log.Info().Str("key", req.UploadKey).Msg("summary uploaded")
	}
	return nil
}

func (s *ReplenishService) outputPath(p string) string {
	if s.outputDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.outputDir, p)
}
