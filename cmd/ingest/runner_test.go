package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ragvault/internal/extractor"
	"ragvault/internal/models"
	"ragvault/internal/service"
	"ragvault/pkg/auth"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeIngester struct {
	requests []service.IngestRequest
	deleted  []uuid.UUID
	fail     bool
}

func (f *fakeIngester) IngestDocument(ctx context.Context, req service.IngestRequest) (*service.IngestResult, error) {
	f.requests = append(f.requests, req)
	id := req.SourceID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if f.fail {
		return &service.IngestResult{SourceID: id, Status: models.SourceStatusFailed, ErrorKind: models.KindExtraction, Message: "The document could not be read"},
			&models.ExtractionError{ContentKind: string(models.ContentKindPDF), Reason: "broken"}
	}
	return &service.IngestResult{SourceID: id, Status: models.SourceStatusCompleted, ChunkCount: 2, TokenCount: 40}, nil
}

func (f *fakeIngester) DeleteSource(ctx context.Context, botID string, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestRunner(t *testing.T, citable bool) (*runner, *fakeIngester, *bytes.Buffer) {
	t.Helper()
	ingester := &fakeIngester{}
	out := &bytes.Buffer{}
	return &runner{
		sources:  ingester,
		manifest: newManifest(filepath.Join(t.TempDir(), "manifest.json")),
		bot:      "b1",
		citable:  citable,
		out:      out,
		logger:   zap.NewNop(),
	}, ingester, out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFileSkipsUnchanged(t *testing.T) {
	r, ingester, out := newTestRunner(t, true)
	path := writeFile(t, t.TempDir(), "guide.md", "# Guide\n\nRefunds take five days.")
	ctx := context.Background()

	require.NoError(t, r.ingestFile(ctx, path))
	require.Len(t, ingester.requests, 1)
	first := ingester.requests[0]
	assert.Equal(t, extractor.MIMEText, first.MIMEType)
	assert.Equal(t, "guide.md", first.Filename)
	assert.True(t, first.Citable)
	assert.Equal(t, uuid.Nil, first.SourceID)

	require.NoError(t, r.ingestFile(ctx, path))
	assert.Len(t, ingester.requests, 1)
	assert.Contains(t, out.String(), "skipped")

	r.force = true
	require.NoError(t, r.ingestFile(ctx, path))
	require.Len(t, ingester.requests, 2)
	assert.NotEqual(t, uuid.Nil, ingester.requests[1].SourceID)
}

func TestIngestFileReprocessesChangedContent(t *testing.T) {
	r, ingester, _ := newTestRunner(t, false)
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "version one")
	ctx := context.Background()

	require.NoError(t, r.ingestFile(ctx, path))
	entry := r.manifest.Entries[manifestKey("b1", path)]

	writeFile(t, dir, "notes.txt", "version two")
	require.NoError(t, r.ingestFile(ctx, path))

	require.Len(t, ingester.requests, 2)
	assert.Equal(t, entry.SourceID, ingester.requests[1].SourceID)
	assert.Empty(t, ingester.deleted)
}

func TestIngestFileCitabilityChangeReplacesSource(t *testing.T) {
	r, ingester, _ := newTestRunner(t, false)
	path := writeFile(t, t.TempDir(), "policy.txt", "internal policy")
	ctx := context.Background()

	require.NoError(t, r.ingestFile(ctx, path))
	old := r.manifest.Entries[manifestKey("b1", path)].SourceID

	r.citable = true
	require.NoError(t, r.ingestFile(ctx, path))

	require.Equal(t, []uuid.UUID{old}, ingester.deleted)
	require.Len(t, ingester.requests, 2)
	assert.Equal(t, uuid.Nil, ingester.requests[1].SourceID)
	assert.True(t, ingester.requests[1].Citable)
	assert.True(t, r.manifest.Entries[manifestKey("b1", path)].Citable)
}

func TestIngestFailureIsReportedNotFatal(t *testing.T) {
	r, ingester, out := newTestRunner(t, false)
	ingester.fail = true
	path := writeFile(t, t.TempDir(), "scan.pdf", "%PDF-1.4 garbage")

	require.NoError(t, r.ingestFile(context.Background(), path))
	assert.Contains(t, out.String(), "failed")
	assert.Contains(t, out.String(), models.KindExtraction)
	assert.Empty(t, r.manifest.Entries)
}

func TestIngestURL(t *testing.T) {
	r, ingester, out := newTestRunner(t, true)
	ctx := context.Background()

	require.NoError(t, r.ingestURL(ctx, "https://example.com/faq"))
	require.NoError(t, r.ingestURL(ctx, "https://example.com/faq"))

	require.Len(t, ingester.requests, 2)
	assert.Equal(t, "https://example.com/faq", ingester.requests[0].URL)
	assert.Equal(t, ingester.requests[1].SourceID, r.manifest.Entries["b1|https://example.com/faq"].SourceID)
	assert.Equal(t, 2, strings.Count(out.String(), "completed"))
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf", "x")
	writeFile(t, dir, "sub/b.docx", "x")
	writeFile(t, dir, "sub/c.exe", "x")
	writeFile(t, dir, ".git/d.txt", "x")
	explicit := writeFile(t, t.TempDir(), "e.bin", "x")

	paths, err := expandPaths([]string{dir, explicit})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "sub", "b.docx"),
		explicit,
	}, paths)

	_, err = expandPaths([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestMimeForPath(t *testing.T) {
	assert.Equal(t, extractor.MIMEPDF, mimeForPath("x.PDF", nil))
	assert.Equal(t, extractor.MIMEHTML, mimeForPath("page.htm", nil))
	assert.True(t, strings.HasPrefix(mimeForPath("readme", []byte("plain words")), "text/plain"))
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")

	m, err := loadManifest(path)
	require.NoError(t, err)
	assert.Empty(t, m.Entries)

	id := uuid.New()
	m.Entries["b1|/tmp/a.txt"] = ManifestEntry{Input: "/tmp/a.txt", SourceID: id, ContentHash: contentHash([]byte("a")), IngestedAt: time.Now().UTC()}
	require.NoError(t, m.Save())

	loaded, err := loadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.Entries["b1|/tmp/a.txt"].SourceID)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = loadManifest(path)
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "cli-secret")
	out := &bytes.Buffer{}

	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"token", "--user", "u1", "--bot", "b1", "--admin"})
	require.NoError(t, cmd.Execute())

	claims, err := auth.NewJWTManager("cli-secret", time.Hour).ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "b1", claims.BotID)
	assert.True(t, claims.IsAdmin())
}

func TestFileCommandRequiresBot(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"file", t.TempDir()})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--bot")
}
