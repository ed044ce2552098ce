// Package artifacts registers content-addressed filing documents on local
// storage. Paths are deterministic, so re-downloading a filing overwrites
// the same file instead of accumulating copies.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"net/http"

	"github.com/Ramsey-B/fern/internal/repositories/artifact"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store writes artifact bytes to disk and records them in the registry.
type Store struct {
	basePath string
	repo     *artifact.Repository
	logger   ectologger.Logger
}

// NewStore creates an artifact store rooted at basePath.
func NewStore(basePath string, repo *artifact.Repository, logger ectologger.Logger) *Store {
	return &Store{
		basePath: basePath,
		repo:     repo,
		logger:   logger,
	}
}

// Path builds the deterministic storage path for an artifact file.
func (s *Store) Path(cik, accessionNumber, filename string) string {
	accession := strings.ReplaceAll(accessionNumber, "-", "")
	return filepath.Join(s.basePath, cik, accession, filename)
}

// RegisterRaw writes a downloaded primary document to storage and registers
// it under the filing's natural key. When the registry row already exists
// the bytes are still refreshed on disk but no second row is created.
func (s *Store) RegisterRaw(ctx context.Context, filing models.FilingRef, body []byte, sourceURL string) (*models.Artifact, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "artifacts.Store.RegisterRaw")
	defer span.End()

	filename := filing.PrimaryDocument
	if filename == "" {
		filename = filing.AccessionNumber + ".htm"
	}
	filename = filepath.Base(filename) // strip any path segments EDGAR includes

	storagePath := s.Path(filing.CIK, filing.AccessionNumber, filename)
	if err := s.write(storagePath, body); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"path": storagePath}).Error("Failed to write raw artifact")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to write artifact to storage")
	}

	record := &models.Artifact{
		CIK:             filing.CIK,
		AccessionNumber: filing.AccessionNumber,
		Kind:            models.ArtifactKindRawFiling,
		FormType:        filing.FormType,
		StoragePath:     storagePath,
		SHA256:          hashBytes(body),
		SizeBytes:       int64(len(body)),
	}
	if filing.FilingDate != "" {
		record.FilingDate = &filing.FilingDate
	}
	if sourceURL != "" {
		record.SourceURL = &sourceURL
	}

	return s.register(ctx, record)
}

// RegisterDerived writes a derived document (such as normalized text) next
// to its raw sibling and registers it under the same filing key with the
// derived kind. The parser version is part of the natural key, so output
// produced by a newer parser lands in a new row and a new file while the
// old version's row stays untouched.
func (s *Store) RegisterDerived(ctx context.Context, raw *models.Artifact, kind models.ArtifactKind, extension, parserVersion string, warnings []string, body []byte) (*models.Artifact, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "artifacts.Store.RegisterDerived")
	defer span.End()

	base := filepath.Base(raw.StoragePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if parserVersion != "" {
		stem = stem + "." + parserVersion
	}
	storagePath := s.Path(raw.CIK, raw.AccessionNumber, stem+extension)

	if err := s.write(storagePath, body); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"path": storagePath}).Error("Failed to write derived artifact")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to write artifact to storage")
	}

	record := &models.Artifact{
		CIK:              raw.CIK,
		AccessionNumber:  raw.AccessionNumber,
		Kind:             kind,
		FormType:         raw.FormType,
		FilingDate:       raw.FilingDate,
		StoragePath:      storagePath,
		SHA256:           hashBytes(body),
		SizeBytes:        int64(len(body)),
		ParentArtifactID: &raw.ID,
		ParserVersion:    parserVersion,
	}
	record.Warnings.Data = warnings

	return s.register(ctx, record)
}

// Read returns the bytes of a registered artifact.
func (s *Store) Read(ctx context.Context, record *models.Artifact) ([]byte, error) {
	_, span := tracing.StartSpan(ctx, "artifacts.Store.Read")
	defer span.End()

	body, err := os.ReadFile(record.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", record.ID, err)
	}
	return body, nil
}

func (s *Store) register(ctx context.Context, record *models.Artifact) (*models.Artifact, bool, error) {
	if record.Warnings.Data == nil {
		record.Warnings.Data = []string{}
	}
	registered, created, err := s.repo.InsertOrGet(ctx, record)
	if err != nil {
		return nil, false, err
	}

	metrics.ArtifactsRegisteredTotal.WithLabelValues(string(record.Kind), fmt.Sprintf("%t", created)).Inc()

	if created {
		s.warnOnDuplicateContent(ctx, registered)
	} else if registered.SHA256 != record.SHA256 {
		// the earlier registration stays authoritative
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"artifact_id":      registered.ID,
			"accession_number": registered.AccessionNumber,
			"stored_sha256":    registered.SHA256,
			"incoming_sha256":  record.SHA256,
		}).Warn("Artifact re-registered with different content")
	}

	return registered, created, nil
}

// warnOnDuplicateContent flags byte-identical documents registered under
// different filings. Duplicates are legal (amendments sometimes refile the
// same document) but worth surfacing.
func (s *Store) warnOnDuplicateContent(ctx context.Context, record *models.Artifact) {
	siblings, err := s.repo.ListBySHA256(ctx, record.SHA256)
	if err != nil {
		return // advisory only
	}
	for _, sibling := range siblings {
		if sibling.ID != record.ID {
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"artifact_id": record.ID,
				"sibling_id":  sibling.ID,
				"sha256":      record.SHA256,
			}).Warn("Artifact bytes already registered under a different filing")
			return
		}
	}
}

func (s *Store) write(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

func hashBytes(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
