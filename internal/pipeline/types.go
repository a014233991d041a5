// Package pipeline defines the core types shared across the ingestion
// subsystems: the queued work item, the persisted article aggregate, and the
// transient products of a fetch attempt.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Priority selects one of the three queue lanes.
type Priority string

// Priority lanes, highest first.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Lanes returns all priorities in dequeue order (high first).
func Lanes() []Priority {
	return []Priority{PriorityHigh, PriorityMedium, PriorityLow}
}

// ParsePriority normalizes and validates a priority label.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("priority must be one of high, medium, low; got %q", s)
	}
}

// WorkItem is the immutable unit of work flowing through the queue.
type WorkItem struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	Source   string   `json:"source"`
	Category string   `json:"category"`
	Priority Priority `json:"priority"`
}

// Validate rejects items that must never enter the queue.
func (w WorkItem) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("work item id is required")
	}
	if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
		return fmt.Errorf("work item url must start with http:// or https://; got %q", w.URL)
	}
	if _, err := ParsePriority(string(w.Priority)); err != nil {
		return err
	}
	return nil
}

// Method records which fetcher produced (or attempted) a document.
type Method string

// Fetch methods.
const (
	MethodStatic   Method = "static"
	MethodRendered Method = "rendered"
	MethodUnknown  Method = "unknown"
)

// Status is the persisted lifecycle state of an article.
type Status string

// Article statuses.
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// FacebookMetadata holds Open Graph publisher identifiers.
type FacebookMetadata struct {
	Publisher string `json:"publisher,omitempty"`
	PageID    string `json:"page_id,omitempty"`
	AppID     string `json:"app_id,omitempty"`
}

// TwitterMetadata holds Twitter-card identifiers.
type TwitterMetadata struct {
	Publisher string `json:"publisher,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Card      string `json:"card,omitempty"`
}

// SocialMetadata groups per-platform publisher blocks.
type SocialMetadata struct {
	Facebook FacebookMetadata `json:"facebook"`
	Twitter  TwitterMetadata  `json:"twitter"`
}

// Metadata is the structured record extracted from a fetched document.
// Every field is optional; absence is an empty value, never an error.
type Metadata struct {
	Title         string         `json:"title,omitempty"`
	Description   string         `json:"description,omitempty"`
	Keywords      []string       `json:"keywords,omitempty"`
	Author        string         `json:"author,omitempty"`
	SiteName      string         `json:"site_name,omitempty"`
	PublishedDate string         `json:"published_date,omitempty"`
	ModifiedDate  string         `json:"modified_date,omitempty"`
	Image         string         `json:"image,omitempty"`
	CanonicalURL  string         `json:"canonical_url,omitempty"`
	Social        SocialMetadata `json:"social_media"`
}

// IsValid reports whether the record counts as a successful extraction.
// A record without a title is never a success.
func (m Metadata) IsValid() bool {
	return strings.TrimSpace(m.Title) != ""
}

// TechnicalMetadata carries lifecycle bookkeeping for a stored article.
// URLHash is assigned once when the article is first created and is never
// regenerated afterwards.
type TechnicalMetadata struct {
	URLHash        string    `json:"url_hash"`
	ScrapedDate    time.Time `json:"scraped_date"`
	ScrapingMethod Method    `json:"scraping_method"`
	Status         Status    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	ProcessingTime float64   `json:"processing_time"`
	RetryCount     int       `json:"retry_count"`
}

// Article is the persisted aggregate: the original work item fields plus the
// extracted metadata and processing bookkeeping. Two articles sharing a
// URLHash denote the same logical entity and collapse to one stored record.
type Article struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Source    string            `json:"source"`
	Category  string            `json:"category"`
	Priority  Priority          `json:"priority"`
	Metadata  *Metadata         `json:"scraped_metadata,omitempty"`
	Technical TechnicalMetadata `json:"technical_metadata"`
}

// NewArticle builds a pending article from a work item. urlHash is the
// content-address of the normalized URL and becomes the dedup key.
func NewArticle(item WorkItem, urlHash string) Article {
	return Article{
		ID:       item.ID,
		URL:      item.URL,
		Source:   item.Source,
		Category: item.Category,
		Priority: item.Priority,
		Technical: TechnicalMetadata{
			URLHash:        urlHash,
			ScrapingMethod: MethodUnknown,
			Status:         StatusPending,
		},
	}
}

// MarkSuccess records a successful processing attempt.
func (a *Article) MarkSuccess(meta Metadata, method Method, elapsed time.Duration, now time.Time) {
	a.Metadata = &meta
	a.Technical.Status = StatusSuccess
	a.Technical.ScrapingMethod = method
	a.Technical.ScrapedDate = now
	a.Technical.ProcessingTime = elapsed.Seconds()
	a.Technical.ErrorMessage = ""
}

// MarkFailed records a failed processing attempt and bumps the retry count.
func (a *Article) MarkFailed(errMsg string, method Method, elapsed time.Duration, now time.Time) {
	a.Technical.Status = StatusFailed
	a.Technical.ScrapingMethod = method
	a.Technical.ScrapedDate = now
	a.Technical.ProcessingTime = elapsed.Seconds()
	a.Technical.ErrorMessage = errMsg
	a.Technical.RetryCount++
}

// Document is the transient product of one fetch attempt. It is consumed by
// the extractor and never persisted.
type Document struct {
	URL        string
	StatusCode int
	HTML       string
	Root       *goquery.Document
}

// Outcome pairs a fetch result with the method that produced it and the
// total wall time the strategy spent on the URL.
type Outcome struct {
	Document *Document
	Method   Method
	Elapsed  time.Duration
	Err      error
}
