package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/pkg/objectstore"
)

// ExportFile is a rendered export.
type ExportFile struct {
	Filename    string
	Format      constant.ExportFormat
	ContentType string
	Body        []byte
}

// ObjectKey is where the file is stored for streamID.
func (f *ExportFile) ObjectKey(streamID uint) string {
	return fmt.Sprintf("exports/%d/%s.%s", streamID, f.Filename, f.Format)
}

func ParseExportFormat(s string) (constant.ExportFormat, error) {
	switch format := constant.ExportFormat(strings.ToLower(s)); format {
	case constant.ExportFormatJSON, constant.ExportFormatCSV:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Export renders every message matching f, newest first.
func (s *QueryService) Export(ctx context.Context, streamID uint, f Filter, format constant.ExportFormat) (*ExportFile, error) {
	format, err := ParseExportFormat(string(format))
	if err != nil {
		return nil, err
	}
	stream, err := s.Stream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	platform, err := PlatformFor(stream.Platform)
	if err != nil {
		return nil, err
	}

	var records []dto.ExportRecord
	err = s.repo.Retry(ctx, func() error {
		q := s.scope(ctx, stream.ID, platform, f).Order("timestamp DESC").Order("id DESC")
		records, err = platform.Export(q)
		return err
	})
	if err != nil {
		return nil, err
	}

	prefix := "export"
	if stream.NativeID != nil && *stream.NativeID != "" {
		prefix = *stream.NativeID
	}
	file := &ExportFile{
		Filename: fmt.Sprintf("%s_%s", prefix, s.now().Format("2006-01-02_15-04-05")),
		Format:   format,
	}

	switch format {
	case constant.ExportFormatJSON:
		file.ContentType = "application/json"
		file.Body, err = json.MarshalIndent(records, "", "  ")
	case constant.ExportFormatCSV:
		file.ContentType = "text/csv"
		file.Body, err = renderCSV(platform.ExportHeader(), records)
	}
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Uint("stream_id", streamID).Int("records", len(records)).Str("format", string(format)).Msg("rendered export")
	return file, nil
}

// renderCSV writes nothing at all for an empty export.
func renderCSV(header []string, records []dto.ExportRecord) ([]byte, error) {
	if len(records) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := w.Write(r.CSVRow()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Exporter renders exports and uploads them to object storage.
type Exporter struct {
	query *QueryService
	store objectstore.Store
}

func NewExporter(query *QueryService, store objectstore.Store) *Exporter {
	return &Exporter{query: query, store: store}
}

// Run executes an export job and returns the object key it was stored at.
func (e *Exporter) Run(ctx context.Context, job dto.ExportJobMessage) (string, error) {
	filter := Filter{
		MessageGroupIDs:    job.MessageGroupIDs,
		IncludeBannedUsers: job.IncludeBannedUsers,
		Moderators:         job.Moderators,
		Username:           job.Username,
		Message:            job.Message,
	}

	file, err := e.query.Export(ctx, job.StreamID, filter, job.Format)
	if err != nil {
		return "", err
	}

	key := file.ObjectKey(job.StreamID)
	if err := e.store.Put(ctx, key, file.ContentType, file.Body); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.JobID.String()).
		Uint("stream_id", job.StreamID).
		Str("key", key).
		Int("bytes", len(file.Body)).
		Msg("export uploaded")
	return key, nil
}
