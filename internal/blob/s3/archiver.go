package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// multipartThreshold switches intent archives to multipart uploads.
const multipartThreshold = 8 * 1024 * 1024

// archivePageSize is the number of intents read from the store per query.
const archivePageSize = 1000

// Archiver copies session universes and a day's order intents to object
// storage. Records are never deleted from the primary store here.
type Archiver struct {
	writer  domain.BlobWriter
	intents domain.IntentStore
	audit   domain.AuditStore
}

// NewArchiver creates an Archiver. intents and audit may be nil; the
// corresponding archive and audit entries are then skipped.
func NewArchiver(writer domain.BlobWriter, intents domain.IntentStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, intents: intents, audit: audit}
}

// ArchiveUniverse uploads u as JSON to universe/YYYY-MM-DD.json and returns
// the object path.
func (a *Archiver) ArchiveUniverse(ctx context.Context, u domain.RankedUniverse) (string, error) {
	buf, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive universe marshal: %w", err)
	}
	path := universePath(u.Session)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive universe upload: %w", err)
	}
	a.logAudit(ctx, "archive.universe", map[string]any{
		"path":       path,
		"candidates": u.Len(),
	})
	return path, nil
}

// ArchiveIntents uploads every intent recorded on day (UTC) as JSONL to
// intents/YYYY-MM-DD.jsonl and returns the number archived.
func (a *Archiver) ArchiveIntents(ctx context.Context, day time.Time) (int, error) {
	if a.intents == nil {
		return 0, nil
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Nanosecond)

	var records []domain.IntentRecord
	for offset := 0; ; offset += archivePageSize {
		page, err := a.intents.ListRecent(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive intents query: %w", err)
		}
		records = append(records, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive intents marshal: %w", err)
	}

	path := intentsPath(start)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive intents upload: %w", err)
	}

	a.logAudit(ctx, "archive.intents", map[string]any{
		"path":  path,
		"count": len(records),
		"day":   start.Format(time.DateOnly),
	})
	return len(records), nil
}

func (a *Archiver) logAudit(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	// The upload already succeeded; an audit failure does not undo it.
	_ = a.audit.Log(ctx, event, detail)
}

//	universe/2026-03-02.json
func universePath(session time.Time) string {
	return "universe/" + session.Format(time.DateOnly) + ".json"
}

//	intents/2026-03-02.jsonl
func intentsPath(day time.Time) string {
	return "intents/" + day.Format(time.DateOnly) + ".jsonl"
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
