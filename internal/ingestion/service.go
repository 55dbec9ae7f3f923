// Package ingestion resolves uploaded file ids to files on local disk.
package ingestion

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/docsuite/docflow/internal/config"
	"github.com/docsuite/docflow/internal/fetcher"
	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/resilience"
)

// Modes supported by the ingestion service.
const (
	ModeHTTP = "http"
	ModeFTP  = "ftp"
	ModeDir  = "dir"
)

// Service downloads uploaded files into a local staging directory. It
// implements the workflow's Ingestor contract.
type Service struct {
	cfg     config.IngestConfig
	http    fetcher.Fetcher
	ftp     fetcher.Fetcher
	tempDir string
}

// New creates an ingestion Service for the configured source mode.
func New(cfg config.IngestConfig) (*Service, error) {
	switch cfg.Mode {
	case ModeHTTP:
		if cfg.BaseURL == "" {
			return nil, eris.New("ingestion: http mode requires base_url")
		}
	case ModeFTP:
		if cfg.FTPAddr == "" {
			return nil, eris.New("ingestion: ftp mode requires ftp_addr")
		}
	case ModeDir, "":
		if cfg.Dir == "" {
			return nil, eris.New("ingestion: dir mode requires dir")
		}
	default:
		return nil, eris.Errorf("ingestion: unknown mode %q", cfg.Mode)
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "docflow")
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "ingestion: create temp dir")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	return &Service{
		cfg: cfg,
		http: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout: timeout,
		}),
		ftp: fetcher.NewFTPFetcher(fetcher.FTPOptions{
			User:     cfg.FTPUser,
			Password: cfg.FTPPassword,
			Timeout:  timeout,
		}),
		tempDir: tempDir,
	}, nil
}

// Download fetches one uploaded file and returns its local location. The
// returned unit's filename is normalized so it is stable across runs, which
// is what the durable store keys on.
func (s *Service) Download(ctx context.Context, fileID string) (*model.FileUnit, error) {
	filename := NormalizeFilename(filepath.Base(fileID))
	if filename == "" {
		return nil, eris.Errorf("ingestion: file id %q yields empty filename", fileID)
	}

	switch s.cfg.Mode {
	case ModeDir, "":
		return s.fromDir(fileID, filename)
	case ModeHTTP:
		return s.fromHTTP(ctx, fileID, filename)
	case ModeFTP:
		return s.fromFTP(ctx, fileID, filename)
	}
	return nil, eris.Errorf("ingestion: unknown mode %q", s.cfg.Mode)
}

func (s *Service) fromDir(fileID, filename string) (*model.FileUnit, error) {
	path := filepath.Join(s.cfg.Dir, fileID)
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "ingestion: stat %s", path)
	}
	return &model.FileUnit{FileID: fileID, FilePath: path, Filename: filename}, nil
}

func (s *Service) fromHTTP(ctx context.Context, fileID, filename string) (*model.FileUnit, error) {
	src := strings.TrimRight(s.cfg.BaseURL, "/") + "/files/" + url.PathEscape(fileID)
	dest := filepath.Join(s.tempDir, filename)

	n, err := s.http.DownloadToFile(ctx, src, dest)
	if err != nil {
		return nil, eris.Wrapf(err, "ingestion: download %s", fileID)
	}
	zap.L().Debug("ingestion: downloaded file",
		zap.String("file_id", fileID),
		zap.Int64("bytes", n),
	)
	return &model.FileUnit{FileID: fileID, FilePath: dest, Filename: filename}, nil
}

func (s *Service) fromFTP(ctx context.Context, fileID, filename string) (*model.FileUnit, error) {
	src := fmt.Sprintf("ftp://%s/%s", s.cfg.FTPAddr, strings.TrimLeft(fileID, "/"))
	dest := filepath.Join(s.tempDir, filename)

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("ftp", "download")

	_, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int64, error) {
		return s.ftp.DownloadToFile(ctx, src, dest)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingestion: ftp download %s", fileID)
	}
	return &model.FileUnit{FileID: fileID, FilePath: dest, Filename: filename}, nil
}

// NormalizeFilename strips diacritics, replaces whitespace with underscores,
// and drops characters that are unsafe in filenames.
func NormalizeFilename(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		normalized = name
	}

	var sb strings.Builder
	for _, r := range normalized {
		switch {
		case unicode.IsSpace(r):
			sb.WriteRune('_')
		case r == '/' || r == '\\' || r == ':':
			sb.WriteRune('_')
		case unicode.IsControl(r):
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Trim(sb.String(), "._")
}
