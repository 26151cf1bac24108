package queryinfo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/ai"
	"github.com/spigell/search-evaluator/internal/logger"
	"github.com/spigell/search-evaluator/internal/utils"
)

const maxKeyPoints = 5

var ErrEmptyQuery = errors.New("query is required")

//go:embed prompt.md
var promptTemplate string

var (
	titlePattern     = regexp.MustCompile(`(?im)^\W*title\W*:[ \t]*(.+)$`)
	summaryPattern   = regexp.MustCompile(`(?im)^\W*summary\W*:[ \t]*(.*)$`)
	keyPointsPattern = regexp.MustCompile(`(?im)^\W*key[ \t]*points\W*:[ \t]*(.*)$`)
	bulletPattern    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

// Info is the loosely structured description of a search query.
type Info struct {
	Query     string   `json:"query"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	ImageURL  string   `json:"image_url"`
}

type ImageResolver interface {
	ImageForKeyword(ctx context.Context, keyword string) string
}

type Service struct {
	generator ai.Generator
	images    ImageResolver
	logger    *zap.Logger
}

func NewService(generator ai.Generator, images ImageResolver, log *zap.Logger) *Service {
	return &Service{
		generator: generator,
		images:    images,
		logger:    logger.WithFields(log),
	}
}

// Describe asks the model about query and extracts title, summary and key
// points on a best-effort basis.
func (s *Service) Describe(ctx context.Context, query string) (*Info, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if s == nil || s.generator == nil {
		return nil, errors.New("query info generator is not configured")
	}

	log := logger.ForContext(ctx, s.logger)
	log.Info("describing query", zap.String(logger.FieldQueryPreview, utils.TruncateForLog(query, 50)))

	raw, err := s.generator.GenerateContent(ctx, BuildPrompt(query))
	if err != nil {
		return nil, fmt.Errorf("generate query info: %w", err)
	}

	info := Extract(query, raw)
	if s.images != nil {
		info.ImageURL = s.images.ImageForKeyword(ctx, query)
	}

	log.Info("query info complete", zap.String("title", info.Title), zap.Int("key_points", len(info.KeyPoints)))

	return info, nil
}

func BuildPrompt(query string) string {
	return strings.ReplaceAll(promptTemplate, "{{QUERY}}", query)
}

// Extract parses a model reply. Labelled sections win; otherwise the first
// line becomes the title, prose lines the summary and list lines the key points.
func Extract(query, raw string) *Info {
	info := &Info{Query: query, KeyPoints: []string{}}
	text := strings.TrimSpace(raw)

	if m := titlePattern.FindStringSubmatch(text); m != nil {
		info.Title = cleanLine(m[1])
	}
	info.Summary = labelledSummary(text)
	info.KeyPoints = labelledKeyPoints(text)

	if info.Title == "" || info.Summary == "" || len(info.KeyPoints) == 0 {
		title, summary, points := heuristicSections(text, info.Title != "")
		if info.Title == "" {
			info.Title = title
		}
		if info.Summary == "" {
			info.Summary = summary
		}
		if len(info.KeyPoints) == 0 {
			info.KeyPoints = points
		}
	}

	if info.Title == "" {
		info.Title = query
	}
	if info.KeyPoints == nil {
		info.KeyPoints = []string{}
	}

	return info
}

func labelledSummary(text string) string {
	loc := summaryPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return ""
	}

	var parts []string
	if first := cleanLine(text[loc[2]:loc[3]]); first != "" {
		parts = append(parts, first)
	}
	for _, line := range strings.Split(strings.TrimPrefix(text[loc[1]:], "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isLabel(line) || bulletPattern.MatchString(line) {
			break
		}
		parts = append(parts, line)
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}

func labelledKeyPoints(text string) []string {
	loc := keyPointsPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}

	var points []string
	if inline := strings.TrimSpace(text[loc[2]:loc[3]]); inline != "" {
		for _, p := range strings.Split(inline, ";") {
			if p = cleanLine(p); p != "" {
				points = append(points, p)
			}
		}
	}

	for _, line := range strings.Split(text[loc[1]:], "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := bulletPattern.FindStringSubmatch(line)
		if m == nil {
			break
		}
		points = append(points, cleanLine(m[1]))
		if len(points) == maxKeyPoints {
			break
		}
	}

	return points
}

func heuristicSections(text string, hasTitle bool) (string, string, []string) {
	var (
		title   string
		summary []string
		points  []string
		rest    []string
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			if len(points) < maxKeyPoints {
				points = append(points, cleanLine(m[1]))
			}
			continue
		}
		if isLabel(line) {
			continue
		}
		if title == "" && !hasTitle {
			title = cleanLine(line)
			continue
		}
		if len(summary) < 3 {
			summary = append(summary, line)
		} else {
			rest = append(rest, cleanLine(line))
		}
	}

	if len(points) == 0 {
		for _, line := range rest {
			if len(points) == maxKeyPoints {
				break
			}
			points = append(points, line)
		}
	}

	return title, strings.Join(summary, " "), points
}

func isLabel(line string) bool {
	return titlePattern.MatchString(line) || summaryPattern.MatchString(line) || keyPointsPattern.MatchString(line)
}

func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "#")
	s = strings.Trim(s, "*_` ")
	return strings.TrimSpace(s)
}
