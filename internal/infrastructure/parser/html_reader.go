package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"CallScorer/internal/domain"
	"CallScorer/internal/source"
)

// Default selectors for the call-platform HTML export. Each can be
// overridden through source options of the same name.
const (
	defaultCallSelector    = "article.call"
	defaultIDAttr          = "data-call-id"
	defaultTurnSelector    = ".turn"
	defaultSpeakerSelector = ".speaker"
	defaultTextSelector    = ".text"
	defaultStartAttr       = "data-start"
	defaultAnalyzedAttr    = "data-analyzed"
)

// HTMLReader extracts transcripts from an HTML export, read from a local
// file, a directory of *.html files or an http(s) URL.
type HTMLReader struct {
	client *http.Client
}

// NewHTMLReader wires an HTTP client used for remote exports.
func NewHTMLReader(client *http.Client) *HTMLReader {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLReader{client: client}
}

// Kind identifies the reader inside the registry.
func (h *HTMLReader) Kind() string {
	return "html"
}

// Read loads every document and collects its calls.
func (h *HTMLReader) Read(ctx context.Context, req source.Request) ([]domain.WorkItem, error) {
	if strings.HasPrefix(req.Path, "http://") || strings.HasPrefix(req.Path, "https://") {
		doc, err := h.fetchDocument(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		return extractCalls(doc, req), nil
	}

	files, err := expandPath(req.Path, ".html")
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := openDocument(path)
		if err != nil {
			return nil, err
		}
		items = append(items, extractCalls(doc, req)...)
	}
	return items, nil
}

func (h *HTMLReader) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CallScorer/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("export returned %s", resp.Status)
	}

	return parseDocument(resp.Body)
}

func openDocument(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := parseDocument(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func parseDocument(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func extractCalls(doc *goquery.Document, req source.Request) []domain.WorkItem {
	var (
		idAttr       = req.Option("id_attr", defaultIDAttr)
		turnSel      = req.Option("turn_selector", defaultTurnSelector)
		speakerSel   = req.Option("speaker_selector", defaultSpeakerSelector)
		textSel      = req.Option("text_selector", defaultTextSelector)
		startAttr    = req.Option("start_attr", defaultStartAttr)
		analyzedAttr = req.Option("analyzed_attr", defaultAnalyzedAttr)
	)

	var items []domain.WorkItem
	doc.Find(req.Option("call_selector", defaultCallSelector)).Each(func(_ int, call *goquery.Selection) {
		id, _ := call.Attr(idAttr)
		if id == "" {
			id, _ = call.Attr("id")
		}

		var segments []Segment
		call.Find(turnSel).Each(func(_ int, turn *goquery.Selection) {
			seg := Segment{
				Speaker: strings.TrimSpace(turn.Find(speakerSel).First().Text()),
				Text:    strings.TrimSpace(turn.Find(textSel).First().Text()),
			}
			if raw, ok := turn.Attr(startAttr); ok {
				if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
					seg.Start = &v
				}
			}
			segments = append(segments, seg)
		})

		transcript := renderTranscript(segments)
		if transcript == "" {
			transcript = strings.Join(strings.Fields(call.Text()), " ")
		}

		analyzed, _ := call.Attr(analyzedAttr)
		items = append(items, domain.WorkItem{
			ID:              strings.TrimSpace(id),
			Transcript:      transcript,
			AlreadyAnalyzed: analyzed == "true",
		})
	})
	return items
}
