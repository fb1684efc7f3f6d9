// Package storage manages the upload and output directories of the HTTP
// server: file naming, upload validation and retention cleanup.
//
// Files are named after the job that owns them:
//
//	uploads/<job-id>_<name>.gcode
//	outputs/<job-id>_<name>_processed.gcode
//
// so that a directory listing is enough to find, and expire, a job's files.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	apperr "github.com/matzehuels/bricklayers/pkg/errors"
)

// Defaults for Config.
const (
	DefaultUploadDir       = "temp/uploads"
	DefaultOutputDir       = "temp/outputs"
	DefaultMaxUploadSize   = 50 << 20
	DefaultRetention       = 24 * time.Hour
	DefaultCleanupInterval = 60 * time.Minute
)

// DefaultExtensions are the accepted upload extensions.
var DefaultExtensions = []string{".gcode", ".gco", ".g"}

// ErrTooLarge is wrapped by errors for uploads above the size limit.
var ErrTooLarge = errors.New("file too large")

// Config locates the directories and sets upload limits.
type Config struct {
	UploadDir     string
	OutputDir     string
	MaxUploadSize int64
	Extensions    []string
	Retention     time.Duration
}

func (c Config) withDefaults() Config {
	if c.UploadDir == "" {
		c.UploadDir = DefaultUploadDir
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	return c
}

// Store owns the upload and output directories.
type Store struct {
	cfg    Config
	logger *log.Logger
}

// New creates both directories if needed.
func New(cfg Config, logger *log.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Store{cfg: cfg, logger: logger}, nil
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// UploadPath returns where the upload of a job is kept.
func (s *Store) UploadPath(jobID, filename string) string {
	return filepath.Join(s.cfg.UploadDir, jobID+"_"+SanitizeFilename(filename))
}

// OutputPath returns where the processed file of a job is written.
func (s *Store) OutputPath(jobID, filename string) string {
	return filepath.Join(s.cfg.OutputDir, jobID+"_"+ProcessedName(filename))
}

// ProcessedName returns the download name of a processed file:
// "benchy.gcode" becomes "benchy_processed.gcode".
func ProcessedName(filename string) string {
	safe := SanitizeFilename(filename)
	ext := filepath.Ext(safe)
	return strings.TrimSuffix(safe, ext) + "_processed" + ext
}

// Save validates an upload and writes it under the job's upload path. It
// returns the path and the number of bytes written. Nothing is left on disk
// when validation fails.
func (s *Store) Save(jobID, filename string, r io.Reader) (string, int64, error) {
	if err := s.ValidateName(filename); err != nil {
		return "", 0, err
	}

	br := bufio.NewReaderSize(r, contentProbeSize)
	head, err := br.Peek(contentProbeSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", 0, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "read upload")
	}
	if len(head) == 0 {
		return "", 0, apperr.New(apperr.ErrCodeInvalidInput, "File is empty")
	}
	if err := ValidateContent(head); err != nil {
		return "", 0, err
	}

	path := s.UploadPath(jobID, filename)
	tmp, err := os.CreateTemp(s.cfg.UploadDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(br, s.cfg.MaxUploadSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	if n > s.cfg.MaxUploadSize {
		return "", 0, s.tooLarge(-1)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	s.logger.Debug("upload saved", "job", jobID, "path", path, "bytes", n)
	return path, n, nil
}

// Remove deletes a file. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
