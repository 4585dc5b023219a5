package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragvault/internal/extractor"
	"ragvault/internal/repository"
	"ragvault/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sourceIngester is the part of the ingestion service the CLI drives.
type sourceIngester interface {
	IngestDocument(ctx context.Context, req service.IngestRequest) (*service.IngestResult, error)
	DeleteSource(ctx context.Context, botID string, id uuid.UUID) error
}

var extensionMIME = map[string]string{
	".pdf":  extractor.MIMEPDF,
	".docx": extractor.MIMEDOCX,
	".txt":  extractor.MIMEText,
	".md":   extractor.MIMEText,
	".html": extractor.MIMEHTML,
	".htm":  extractor.MIMEHTML,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

type runner struct {
	sources  sourceIngester
	manifest *Manifest
	bot      string
	citable  bool
	force    bool
	out      io.Writer
	logger   *zap.Logger
}

func (r *runner) ingestFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	key := manifestKey(r.bot, path)
	hash := contentHash(data)
	previous, seen := r.manifest.Entries[key]
	if seen && previous.ContentHash == hash && previous.Citable == r.citable && !r.force {
		r.logger.Info("File unchanged, skipping", zap.String("path", path), zap.Time("ingested_at", previous.IngestedAt))
		fmt.Fprintf(r.out, "skipped\t%s\tunchanged\n", path)
		return nil
	}

	req := service.IngestRequest{
		BotID:    r.bot,
		Citable:  r.citable,
		Content:  data,
		MIMEType: mimeForPath(path, data),
		Filename: filepath.Base(path),
	}
	return r.ingest(ctx, key, path, hash, req, previous, seen)
}

func (r *runner) ingestURL(ctx context.Context, rawURL string) error {
	key := manifestKey(r.bot, rawURL)
	previous, seen := r.manifest.Entries[key]
	req := service.IngestRequest{
		BotID:   r.bot,
		Citable: r.citable,
		URL:     rawURL,
	}
	return r.ingest(ctx, key, rawURL, "", req, previous, seen)
}

// ingest reprocesses the previously recorded source when there is one. A
// source cannot change citability, so a flipped --citable replaces it.
func (r *runner) ingest(ctx context.Context, key, label, hash string, req service.IngestRequest, previous ManifestEntry, seen bool) error {
	if seen {
		if previous.Citable == r.citable {
			req.SourceID = previous.SourceID
		} else {
			err := r.sources.DeleteSource(ctx, r.bot, previous.SourceID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to replace %s: %w", label, err)
			}
			r.logger.Info("Citability changed, replacing source",
				zap.String("input", label),
				zap.String("old_source_id", previous.SourceID.String()),
			)
		}
	}

	result, err := r.sources.IngestDocument(ctx, req)
	if err != nil {
		if result == nil {
			return fmt.Errorf("failed to ingest %s: %w", label, err)
		}
		// The source is recorded as failed; carry on with the remaining inputs.
		r.logger.Error("Ingestion failed", zap.String("input", label), zap.String("kind", result.ErrorKind), zap.Error(err))
		fmt.Fprintf(r.out, "failed\t%s\t%s: %s\n", label, result.ErrorKind, result.Message)
		delete(r.manifest.Entries, key)
		return nil
	}

	r.manifest.Entries[key] = ManifestEntry{
		Input:       label,
		SourceID:    result.SourceID,
		ContentHash: hash,
		Citable:     r.citable,
		IngestedAt:  time.Now().UTC(),
	}
	fmt.Fprintf(r.out, "%s\t%s\t%s\t%d chunks\t%d tokens\n", result.Status, label, result.SourceID, result.ChunkCount, result.TokenCount)
	return nil
}

// expandPaths replaces directories with the supported files below them.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != arg && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if _, ok := extensionMIME[strings.ToLower(filepath.Ext(path))]; ok {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	return paths, nil
}

func mimeForPath(path string, data []byte) string {
	if mime, ok := extensionMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return http.DetectContentType(data)
}

func manifestKey(bot, input string) string {
	if !strings.Contains(input, "://") {
		if abs, err := filepath.Abs(input); err == nil {
			input = abs
		}
	}
	return bot + "|" + input
}
