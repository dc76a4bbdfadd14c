package parse

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Navigation noise that must never be taken for a category name.
var languageCodes = map[string]bool{"LV": true, "EN": true, "RU": true}

// brandStrategies are tried in order; the first selector that yields matching
// anchors wins. The site has shipped both a heading-based layout and a plain
// table layout over the years.
var brandStrategies = []string{
	"h4.category > a.a_category",
	"a.a_category",
	"a[href]",
}

// Brands extracts (name, url) pairs for brands from the root category page.
func Brands(html, baseURL, rootPath string) []Category {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	for _, selector := range brandStrategies {
		var brands []Category
		seen := make(map[string]bool)

		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			name := strings.TrimSpace(s.Text())
			if !ok || href == "" || name == "" {
				return
			}
			if !strings.HasPrefix(href, rootPath) || href == rootPath {
				return
			}
			if isNoiseLink(href, name) {
				return
			}

			slug := lastPathSegment(href)
			if slug == "" || seen[strings.ToLower(slug)] {
				return
			}
			seen[strings.ToLower(slug)] = true

			brands = append(brands, Category{
				Name:  name,
				Slug:  slug,
				URL:   absoluteURL(baseURL, href),
				Count: categoryCount(s),
			})
		})

		if len(brands) > 0 {
			return brands
		}
	}
	return nil
}

// Models extracts model links from a brand page. Only links under the brand's
// own path qualify; the brand's self-link and search/pagination links do not.
func Models(html, baseURL, brandPath, brandName string) []Category {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	for _, selector := range brandStrategies {
		var found []Category
		seen := make(map[string]bool)

		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			name := strings.TrimSpace(s.Text())
			if !ok || href == "" || name == "" {
				return
			}
			if !strings.Contains(href, brandPath) || href == brandPath {
				return
			}
			if isNoiseLink(href, name) {
				return
			}
			if strings.EqualFold(name, brandName) {
				return
			}

			slug := lastPathSegment(href)
			if slug == "" || strings.Contains(slug, "page") || seen[strings.ToLower(slug)] {
				return
			}
			seen[strings.ToLower(slug)] = true

			found = append(found, Category{
				Name:  name,
				Slug:  slug,
				URL:   absoluteURL(baseURL, href),
				Count: categoryCount(s),
			})
		})

		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func isNoiseLink(href, name string) bool {
	if languageCodes[name] {
		return true
	}
	lower := strings.ToLower(href)
	return strings.Contains(lower, "search") || strings.Contains(strings.ToLower(name), "search")
}

// categoryCount reads the listing count from the "(123)" span that follows a
// category anchor, when present.
func categoryCount(s *goquery.Selection) int {
	span := s.Parent().Parent().Find("span.category_cnt").First()
	if span.Length() == 0 {
		return 0
	}
	text := strings.Trim(strings.TrimSpace(span.Text()), "()")
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0
	}
	return n
}

func lastPathSegment(href string) string {
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(baseURL, "/") + href
}
