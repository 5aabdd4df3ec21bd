// Package extract converts fetched bytes into normalized text and metric
// candidates.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"

	"github.com/lumira/research-crawler/internal/pipeline"
)

// Config controls extraction behavior.
type Config struct {
	// MaxContentLength caps normalized text, in bytes. Truncation never
	// splits a UTF-8 sequence.
	MaxContentLength int
	// MetricPatterns maps metric names to the keywords that must appear
	// near a numeric token to produce a match.
	MetricPatterns map[string][]string
	// MatchWindow is the character distance within which a keyword and a
	// numeric token are considered adjacent.
	MatchWindow int
}

// Extractor implements pipeline.Extractor for HTML, PDF, and plain text.
type Extractor struct {
	cfg      Config
	patterns map[string][]string
}

// Chrome-less readability needs a base URL only for resolving relative
// links, which we discard.
var readabilityBase = &url.URL{Scheme: "https", Host: "localhost"}

var (
	numberToken = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})*(?:[.,]\d+)?\s*%?|\d+(?:[.,]\d+)?\s*%?`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// New builds an Extractor.
func New(cfg Config) *Extractor {
	if cfg.MatchWindow <= 0 {
		cfg.MatchWindow = 100
	}
	lowered := make(map[string][]string, len(cfg.MetricPatterns))
	for name, keywords := range cfg.MetricPatterns {
		kws := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		lowered[name] = kws
	}
	return &Extractor{cfg: cfg, patterns: lowered}
}

// Extract converts raw bytes into normalized UTF-8 text plus metric matches.
// Identical input always yields identical output.
func (e *Extractor) Extract(raw []byte, contentType string) (pipeline.Extraction, error) {
	var (
		text  string
		title string
		err   error
	)
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		text, title, err = e.extractHTML(raw)
	case strings.Contains(contentType, "application/pdf"):
		text, err = extractPDF(raw)
	case strings.Contains(contentType, "text/plain"), contentType == "":
		text = string(raw)
	default:
		return pipeline.Extraction{}, &pipeline.ExtractionError{
			ContentType: contentType,
			Err:         fmt.Errorf("no extractor for content type"),
		}
	}
	if err != nil {
		return pipeline.Extraction{}, &pipeline.ExtractionError{ContentType: contentType, Err: err}
	}

	text = Normalize(text)
	text = Truncate(text, e.cfg.MaxContentLength)

	return pipeline.Extraction{
		Text:    text,
		Title:   strings.TrimSpace(title),
		Metrics: e.matchMetrics(text),
	}, nil
}

func (e *Extractor) extractHTML(raw []byte) (string, string, error) {
	article, err := readability.FromReader(bytes.NewReader(raw), readabilityBase)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent, article.Title, nil
	}

	// Readability bails on pages without an article body (index pages,
	// data portals). Fall back to stripping markup wholesale.
	doc, derr := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if derr != nil {
		if err != nil {
			return "", "", fmt.Errorf("readability: %w", err)
		}
		return "", "", fmt.Errorf("parse html: %w", derr)
	}
	doc.Find("script, style, nav, header, footer, aside, iframe, noscript").Remove()
	title := doc.Find("title").First().Text()
	return doc.Find("body").Text(), title, nil
}

func extractPDF(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf text layer: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return sb.String(), nil
}

// Normalize collapses runs of whitespace into single spaces and strips
// leading/trailing space.
func Normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Truncate caps text at max bytes without splitting a UTF-8 sequence.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// matchMetrics scans for numeric/percentage tokens and records the token
// under every metric whose keyword occurs within the match window. Isolated
// keywords with no adjacent number are not matches.
func (e *Extractor) matchMetrics(text string) map[string][]string {
	if len(e.patterns) == 0 || text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	locs := numberToken.FindAllStringIndex(lower, -1)
	if len(locs) == 0 {
		return nil
	}

	const maxValuesPerMetric = 8
	out := make(map[string][]string)
	for name, keywords := range e.patterns {
		seen := make(map[string]struct{})
		for _, loc := range locs {
			start := loc[0] - e.cfg.MatchWindow
			if start < 0 {
				start = 0
			}
			end := loc[1] + e.cfg.MatchWindow
			if end > len(lower) {
				end = len(lower)
			}
			window := lower[start:end]

			for _, kw := range keywords {
				if !strings.Contains(window, kw) {
					continue
				}
				// Indices are offsets into lower; case folding can change
				// byte lengths, so they must not be used to slice text.
				value := strings.TrimSpace(lower[loc[0]:loc[1]])
				if _, dup := seen[value]; !dup {
					seen[value] = struct{}{}
					out[name] = append(out[name], value)
				}
				break
			}
			if len(out[name]) >= maxValuesPerMetric {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
