package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/dvf"
)

// FileOptions tunes a whole-file import run.
type FileOptions struct {
	DataYear  int
	ChunkSize int
	Force     bool
	Progress  bool
}

// ImportFile streams one DVF source file through the chunked pipeline.
// The file's hash is checked first: a vintage that already has a
// completed batch is refused unless Force is set, so re-running an
// import job is cheap and safe.
func (i *Ingestor) ImportFile(ctx context.Context, path string, opts FileOptions) (*Import, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	fileHash, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash source file: %w", err)
	}

	if !opts.Force {
		prior, findErr := i.store.FindCompletedBatchByFileHash(ctx, fileHash)
		if findErr == nil {
			return nil, fmt.Errorf("%w: batch %s imported %s",
				common.ErrAlreadyImported, prior.BatchID, prior.SourceFile)
		}
		if !errors.Is(findErr, common.ErrNotFound) {
			return nil, findErr
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader, err := dvf.NewReader(f)
	if err != nil {
		return nil, err
	}

	imp, err := i.StartImport(ctx, filepath.Base(path), fileHash, opts.DataYear, reader.Schema())
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.Default(-1, "importing rows")
	}

	chunkNum := 0
	for {
		if err := ctx.Err(); err != nil {
			imp.Fail(ctx, err)
			return imp, err
		}

		rows, readErr := reader.ReadChunk(opts.ChunkSize)
		if readErr != nil {
			// I/O or encoding trouble aborts the file but the chunks
			// already persisted stay until an explicit rollback.
			imp.Fail(ctx, readErr)
			return imp, readErr
		}
		if len(rows) == 0 {
			break
		}
		chunkNum++

		report, chunkErr := imp.IngestChunk(ctx, rows)
		if chunkErr != nil {
			return imp, chunkErr
		}
		if bar != nil {
			_ = bar.Add(len(rows))
		}

		slog.Debug("Processed chunk",
			"batch_id", imp.batch.BatchID,
			"chunk", chunkNum,
			"rows", len(rows),
			"accepted", report.Accepted,
			"duplicates", report.Duplicates,
			"rejected", report.Rejected())
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := imp.Complete(ctx); err != nil {
		return imp, err
	}
	return imp, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
