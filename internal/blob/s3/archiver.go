package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// TicketArchiveStore is the part of the ticket store the archiver needs.
type TicketArchiveStore interface {
	ListTerminal(ctx context.Context, before time.Time, limit int) ([]domain.Ticket, error)
	DeleteBatch(ctx context.Context, addrs []common.Address) (int64, error)
}

// Archiver moves settled tickets out of postgres into JSONL objects and
// writes a JSONL copy of every closed round. Tickets are deleted from the
// store only after their object is uploaded and read back.
type Archiver struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	tickets TicketArchiveStore
	batch   int
	logger  *slog.Logger
}

// NewArchiver creates an Archiver moving at most batch tickets per object.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, tickets TicketArchiveStore, batch int, logger *slog.Logger) *Archiver {
	if batch <= 0 {
		batch = 1000
	}
	return &Archiver{
		writer:  writer,
		reader:  reader,
		tickets: tickets,
		batch:   batch,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTickets archives every terminal ticket settled before the cutoff
// and returns how many were moved.
func (a *Archiver) ArchiveTickets(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		batch, err := a.tickets.ListTerminal(ctx, before, a.batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive tickets query: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive tickets marshal: %w", err)
		}
		path, err := a.nextPath(ctx, "tickets/"+before.Format("2006-01"))
		if err != nil {
			return total, err
		}
		if err := a.upload(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive tickets upload: %w", err)
		}
		if err := a.verify(ctx, path, len(batch)); err != nil {
			return total, err
		}

		addrs := make([]common.Address, len(batch))
		for i, t := range batch {
			addrs[i] = t.Address
		}
		n, err := a.tickets.DeleteBatch(ctx, addrs)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive tickets delete: %w", err)
		}
		total += n
		a.logger.Info("archiver: tickets archived",
			slog.String("path", path),
			slog.Int("count", len(batch)),
		)
		if len(batch) < a.batch {
			return total, nil
		}
	}
}

// ArchiveRounds writes the closed rounds of pool to one object.
func (a *Archiver) ArchiveRounds(ctx context.Context, pool string, rounds []domain.RoundSnapshot) error {
	if len(rounds) == 0 {
		return nil
	}
	buf, err := marshalJSONL(rounds)
	if err != nil {
		return fmt.Errorf("s3blob: archive rounds marshal: %w", err)
	}
	path := roundsPath(pool, rounds[0].Round, rounds[len(rounds)-1].Round)
	if err := a.upload(ctx, path, buf); err != nil {
		return fmt.Errorf("s3blob: archive rounds upload: %w", err)
	}
	a.logger.Info("archiver: rounds archived",
		slog.String("path", path),
		slog.Int("count", len(rounds)),
	)
	return nil
}

// nextPath returns the first unused part object under archive/<prefix>/.
func (a *Archiver) nextPath(ctx context.Context, prefix string) (string, error) {
	existing, err := a.reader.List(ctx, "archive/"+prefix+"/")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive list %s: %w", prefix, err)
	}
	for part := len(existing); ; part++ {
		path := partPath(prefix, part)
		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", err
		}
		if !ok {
			return path, nil
		}
	}
}

// verify reads path back and checks it holds want records. Tickets are only
// deleted once their object reads back whole.
func (a *Archiver) verify(ctx context.Context, path string, want int) error {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive read back: %w", err)
	}
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	got := 0
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			got++
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("s3blob: archive read back %s: %w", path, err)
	}
	if got != want {
		return fmt.Errorf("s3blob: archive %s holds %d records, want %d", path, got, want)
	}
	return nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) > minPartSize {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
}

// partPath builds the key of one archive part:
//
//	archive/tickets/2026-03/part-0000.jsonl
func partPath(prefix string, part int) string {
	return fmt.Sprintf("archive/%s/part-%04d.jsonl", prefix, part)
}

// roundsPath builds the key of a range of closed rounds:
//
//	archive/rounds/parlay/000001-000004.jsonl
func roundsPath(pool string, first, last uint64) string {
	return fmt.Sprintf("archive/rounds/%s/%06d-%06d.jsonl", pool, first, last)
}

// marshalJSONL serialises records as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
