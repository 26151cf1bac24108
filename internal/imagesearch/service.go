package imagesearch

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/logger"
	"github.com/spigell/search-evaluator/internal/resilience"
	"github.com/spigell/search-evaluator/internal/utils"
)

const (
	DefaultFallbackURL    = "https://source.unsplash.com/800x600/?{keyword}"
	DefaultPlaceholderURL = "https://via.placeholder.com/800x600?text=No+Image"

	keywordPlaceholder = "{keyword}"
)

// Image sources reported to the Recorder.
const (
	SourceSearch      = "search"
	SourceKeyword     = "keyword"
	SourcePlaceholder = "placeholder"
)

// Request describes what the image should represent.
type Request struct {
	ItemTitle    string `json:"item_title"`
	ItemCategory string `json:"item_category"`
	Query        string `json:"query"`
}

type Searcher interface {
	Search(ctx context.Context, keyword string) ([]string, error)
}

type Recorder interface {
	RecordImageSource(source string)
}

// Service resolves an image URL for a request and never fails: it falls back
// from the search API to a keyword URL and finally to a static placeholder.
type Service struct {
	searcher       Searcher
	fallbackURL    string
	placeholderURL string
	recorder       Recorder
	logger         *zap.Logger
}

type ServiceConfig struct {
	FallbackURL    string
	PlaceholderURL string
}

func NewService(searcher Searcher, cfg ServiceConfig, recorder Recorder, log *zap.Logger) *Service {
	fallback := strings.TrimSpace(cfg.FallbackURL)
	if fallback == "" {
		fallback = DefaultFallbackURL
	}
	placeholder := strings.TrimSpace(cfg.PlaceholderURL)
	if placeholder == "" {
		placeholder = DefaultPlaceholderURL
	}

	return &Service{
		searcher:       searcher,
		fallbackURL:    fallback,
		placeholderURL: placeholder,
		recorder:       recorder,
		logger:         logger.WithFields(log),
	}
}

// Keyword builds the search phrase: title and category, or the query when no
// title is given.
func Keyword(req Request) string {
	subject := utils.FirstNonEmpty(req.ItemTitle, req.Query)
	if subject == "" {
		return strings.TrimSpace(req.ItemCategory)
	}
	if category := strings.TrimSpace(req.ItemCategory); category != "" && !strings.Contains(strings.ToLower(subject), strings.ToLower(category)) {
		return subject + " " + category
	}
	return subject
}

// ImageFor returns an image URL for req.
func (s *Service) ImageFor(ctx context.Context, req Request) string {
	return s.ImageForKeyword(ctx, Keyword(req))
}

func (s *Service) ImageForKeyword(ctx context.Context, keyword string) string {
	log := logger.ForContext(ctx, s.logger).With(zap.String("keyword", keyword))

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		log.Warn("no keyword for image search, using placeholder")
		return s.use(SourcePlaceholder, s.placeholderURL)
	}

	if s.searcher != nil {
		urls, err := s.searcher.Search(ctx, keyword)
		switch {
		case resilience.IsCircuitOpen(err):
			log.Info("image search circuit is open, falling back to keyword url")
		case err != nil:
			log.Warn("image search failed, falling back to keyword url", zap.Error(err))
		case len(urls) == 0:
			log.Info("image search returned no results, falling back to keyword url")
		default:
			return s.use(SourceSearch, urls[0])
		}
	}

	if fallback := s.keywordURL(keyword); fallback != "" {
		return s.use(SourceKeyword, fallback)
	}

	log.Warn("keyword fallback url is unusable, using placeholder", zap.String("template", s.fallbackURL))
	return s.use(SourcePlaceholder, s.placeholderURL)
}

func (s *Service) keywordURL(keyword string) string {
	raw := strings.ReplaceAll(s.fallbackURL, keywordPlaceholder, url.QueryEscape(keyword))
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

func (s *Service) use(source, imageURL string) string {
	if s.recorder != nil {
		s.recorder.RecordImageSource(source)
	}
	return imageURL
}
