// Package parser turns raw filing HTML into normalized plain text artifacts.
package parser

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/artifact"
	"github.com/Ramsey-B/fern/pkg/artifacts"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeHTML strips markup from a filing document and collapses the
// remaining text to single-spaced tokens.
func NormalizeHTML(input []byte) string {
	text := string(input)
	text = scriptBlockRe.ReplaceAllString(text, " ")
	text = styleBlockRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Parser executes parse jobs: it reads the raw artifact, normalizes it and
// registers the parsed text as a sibling artifact.
type Parser struct {
	store        *artifacts.Store
	artifactRepo *artifact.Repository
	logger       ectologger.Logger
}

// NewParser creates a parse job executor.
func NewParser(store *artifacts.Store, artifactRepo *artifact.Repository, logger ectologger.Logger) *Parser {
	return &Parser{
		store:        store,
		artifactRepo: artifactRepo,
		logger:       logger,
	}
}

// Execute runs one parse job. Registering the parsed artifact is itself
// insert-or-get, so a retried job that already produced output completes
// without duplicating it.
func (p *Parser) Execute(ctx context.Context, job *models.ParseJob) error {
	ctx, span := tracing.StartSpan(ctx, "parser.Parser.Execute")
	defer span.End()

	raw, err := p.artifactRepo.Get(ctx, job.ArtifactID)
	if err != nil {
		return err
	}
	if raw.Kind != models.ArtifactKindRawFiling {
		return fmt.Errorf("parse job %s targets %s artifact %s, expected %s", job.ID, raw.Kind, raw.ID, models.ArtifactKindRawFiling)
	}

	body, err := p.store.Read(ctx, raw)
	if err != nil {
		return err
	}

	text := NormalizeHTML(body)
	if text == "" {
		return fmt.Errorf("parse job %s produced no text from artifact %s", job.ID, raw.ID)
	}

	var warnings []string
	if len(text) < 200 {
		warnings = append(warnings, fmt.Sprintf("normalized text is only %d bytes", len(text)))
	}
	if strings.Contains(text, "<") {
		warnings = append(warnings, "normalized text still contains angle brackets")
	}

	parsed, created, err := p.store.RegisterDerived(ctx, raw, models.ArtifactKindParsedText, ".txt", job.ParserVersion, warnings, []byte(text))
	if err != nil {
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":      job.ID,
		"artifact_id": parsed.ID,
		"created":     created,
		"text_bytes":  len(text),
	}).Info("Parsed filing text")

	return nil
}
