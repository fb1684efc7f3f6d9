package storage

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	apperr "github.com/matzehuels/bricklayers/pkg/errors"
)

// contentProbeSize is how much of an upload is checked for G-code.
const contentProbeSize = 2048

// maxStem caps the sanitised name before the extension.
const maxStem = 100

var (
	validName  = regexp.MustCompile(`^[\w\s.-]+$`)
	unsafeRun  = regexp.MustCompile(`[^\w.-]`)
	underscore = regexp.MustCompile(`_+`)

	// An upload must show at least minSignals of these in its first bytes.
	gcodeSignals = []*regexp.Regexp{
		regexp.MustCompile(`G[0-9]+`),
		regexp.MustCompile(`M[0-9]+`),
		regexp.MustCompile(`X[0-9.-]+`),
		regexp.MustCompile(`Y[0-9.-]+`),
		regexp.MustCompile(`Z[0-9.-]+`),
		regexp.MustCompile(`;`),
	}
)

const minSignals = 3

// ValidateName checks an upload's file name and extension.
func (s *Store) ValidateName(filename string) error {
	if filename == "" {
		return apperr.New(apperr.ErrCodeInvalidInput, "No filename provided")
	}
	if err := apperr.ValidateFilename(filename); err != nil {
		return err
	}
	if !validName.MatchString(filename) {
		return apperr.New(apperr.ErrCodeInvalidPath, "Filename contains invalid characters")
	}
	return apperr.ValidateExtension(filename, s.cfg.Extensions)
}

// ValidateSize checks a declared upload size against the limit.
func (s *Store) ValidateSize(size int64) error {
	if size == 0 {
		return apperr.New(apperr.ErrCodeInvalidInput, "File is empty")
	}
	if size > s.cfg.MaxUploadSize {
		return s.tooLarge(size)
	}
	return nil
}

func (s *Store) tooLarge(size int64) error {
	limit := float64(s.cfg.MaxUploadSize) / (1 << 20)
	if size < 0 {
		return apperr.Wrap(apperr.ErrCodeInvalidInput, ErrTooLarge,
			"File exceeds maximum allowed size (%.2fMB)", limit)
	}
	return apperr.Wrap(apperr.ErrCodeInvalidInput, ErrTooLarge,
		"File size (%.2fMB) exceeds maximum allowed size (%.2fMB)", float64(size)/(1<<20), limit)
}

// ValidateContent checks that head, the start of a file, looks like G-code.
// Invalid UTF-8 is ignored.
func ValidateContent(head []byte) error {
	text := string(head)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	matches := 0
	for _, re := range gcodeSignals {
		if re.MatchString(text) {
			matches++
		}
	}
	if matches < minSignals {
		return apperr.New(apperr.ErrCodeInvalidInput,
			"File doesn't appear to contain valid G-code. Expected G-code commands and coordinates.")
	}
	return nil
}

// SanitizeFilename returns a file system safe version of name. Unsafe runs
// become a single underscore and the stem is capped at 100 characters; the
// extension is kept.
func SanitizeFilename(name string) string {
	name = apperr.SanitizeFilename(name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stem = unsafeRun.ReplaceAllString(stem, "_")
	stem = underscore.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "_")
	if len(stem) > maxStem {
		stem = stem[:maxStem]
	}
	return stem + ext
}
