// Package fetcher holds the two-tier fetch strategy and the content
// validation shared by its fetchers.
package fetcher

import (
	"fmt"
	"strings"

	"github.com/newsgrid/harvester/internal/pipeline"
)

// Validator checks that a fetched document actually carries the elements a
// useful article page must have. A page that loads but misses them is
// treated as a failed fetch, not as a thin success.
type Validator struct {
	required []string
}

// NewValidator builds a validator for the given CSS selectors. With no
// selectors it falls back to requiring a discoverable title.
func NewValidator(required []string) *Validator {
	if len(required) == 0 {
		required = []string{"title"}
	}
	return &Validator{required: required}
}

// Validate returns nil when every required element is present. The "title"
// requirement is satisfied by either a non-empty <title> or an og:title
// meta tag, since many outlets only set the latter.
func (v *Validator) Validate(doc *pipeline.Document) error {
	if doc == nil || doc.Root == nil {
		return fmt.Errorf("document has no parsed content")
	}

	var missing []string
	for _, sel := range v.required {
		if sel == "title" {
			if !hasTitle(doc) {
				missing = append(missing, sel)
			}
			continue
		}
		if doc.Root.Find(sel).Length() == 0 {
			missing = append(missing, sel)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required elements: %s", strings.Join(missing, ", "))
	}
	return nil
}

func hasTitle(doc *pipeline.Document) bool {
	if strings.TrimSpace(doc.Root.Find("title").First().Text()) != "" {
		return true
	}
	og := doc.Root.Find(`meta[property="og:title"]`).First().AttrOr("content", "")
	return strings.TrimSpace(og) != ""
}
