// Package extract turns a parsed document into a structured metadata record.
// Extraction is pure: no I/O, no mutation of the input, and a missing
// element always yields an empty field, never an error.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsgrid/harvester/internal/pipeline"
)

// Metadata extracts every field from the document, taking the first
// non-empty candidate per field.
func Metadata(doc *pipeline.Document) pipeline.Metadata {
	root := doc.Root

	meta := pipeline.Metadata{
		Title:         title(root),
		Description:   firstMeta(root, "description", "og:description", "twitter:description"),
		Keywords:      keywords(root),
		Author:        author(root),
		SiteName:      metaContent(root, "og:site_name"),
		PublishedDate: publishedDate(root),
		ModifiedDate:  firstMeta(root, "article:modified_time", "last-modified", "updated_time"),
		Image:         image(root),
		CanonicalURL:  canonicalURL(root),
	}

	meta.Social.Facebook = pipeline.FacebookMetadata{
		Publisher: firstMeta(root, "article:publisher", "og:site_name", "twitter:site"),
		PageID:    metaContent(root, "fb:pages"),
		AppID:     metaContent(root, "fb:app_id"),
	}
	meta.Social.Twitter = pipeline.TwitterMetadata{
		Publisher: metaContent(root, "twitter:site"),
		Creator:   metaContent(root, "twitter:creator"),
		Card:      metaContent(root, "twitter:card"),
	}

	return meta
}

func title(root *goquery.Document) string {
	if t := strings.TrimSpace(root.Find("title").First().Text()); t != "" {
		return t
	}
	return firstMeta(root, "og:title", "twitter:title")
}

func keywords(root *goquery.Document) []string {
	raw := metaContent(root, "keywords")
	if raw == "" {
		return nil
	}
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func author(root *goquery.Document) string {
	if a := firstMeta(root, "author", "article:author"); a != "" {
		return a
	}
	return strings.TrimSpace(root.Find(`a[rel="author"]`).First().Text())
}

func publishedDate(root *goquery.Document) string {
	if d := firstMeta(root, "article:published_time", "publish_date", "pubdate"); d != "" {
		return d
	}
	return strings.TrimSpace(root.Find("time[datetime]").First().AttrOr("datetime", ""))
}

func image(root *goquery.Document) string {
	if img := firstMeta(root, "og:image", "twitter:image", "image"); img != "" {
		return img
	}
	return linkHref(root, "image_src")
}

func canonicalURL(root *goquery.Document) string {
	if href := linkHref(root, "canonical"); href != "" {
		return href
	}
	return metaContent(root, "og:url")
}

// metaContent looks a meta tag up by property first, then by name.
func metaContent(root *goquery.Document, key string) string {
	sel := root.Find(fmt.Sprintf(`meta[property=%q]`, key)).First()
	if sel.Length() == 0 {
		sel = root.Find(fmt.Sprintf(`meta[name=%q]`, key)).First()
	}
	return strings.TrimSpace(sel.AttrOr("content", ""))
}

func firstMeta(root *goquery.Document, keys ...string) string {
	for _, key := range keys {
		if c := metaContent(root, key); c != "" {
			return c
		}
	}
	return ""
}

func linkHref(root *goquery.Document, rel string) string {
	return strings.TrimSpace(root.Find(fmt.Sprintf(`link[rel=%q]`, rel)).First().AttrOr("href", ""))
}
