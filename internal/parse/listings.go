package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	onclickIDPattern = regexp.MustCompile(`go_to\('(\d+)'\)`)
	digitsPattern    = regexp.MustCompile(`\d`)
)

// nextPageLabels matches the "next page" link in the languages the site
// renders its navigation in, plus the bare glyph variant.
var nextPageLabels = map[string]bool{
	"Nākamā":    true,
	"Next":      true,
	"Следующая": true,
	">>":        true,
}

// exchangeMarkers flag trade/want-to-buy posts. Matching is lowercase
// substring, same as the detail-page check.
var exchangeMarkers = []string{
	"maiņa", "mainu", "vēlos mainīt", "vēlos pirkt", "pērku",
	"exchange", "want to buy",
	"меняю", "обмен", "куплю",
}

// Index extracts one partial record per listing row of a model's index page.
func Index(html, baseURL, brand, model string) []Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	rows := doc.Find("tr[id^=tr_]")
	if rows.Length() == 0 {
		rows = doc.Find("tr[onclick]")
	}

	var records []Record
	seen := make(map[string]bool)

	rows.Each(func(_ int, row *goquery.Selection) {
		rec, ok := parseIndexRow(row, baseURL)
		if !ok || seen[rec.ExternalID] {
			return
		}
		seen[rec.ExternalID] = true
		rec.Brand = brand
		rec.Model = model
		records = append(records, rec)
	})

	return records
}

func parseIndexRow(row *goquery.Selection, baseURL string) (Record, bool) {
	var rec Record

	if id, ok := row.Attr("id"); ok && strings.HasPrefix(id, "tr_") {
		rec.ExternalID = strings.TrimPrefix(id, "tr_")
	} else if onclick, ok := row.Attr("onclick"); ok {
		if m := onclickIDPattern.FindStringSubmatch(onclick); m != nil {
			rec.ExternalID = m[1]
		}
	}
	if rec.ExternalID == "" {
		return rec, false
	}

	link := row.Find("td.msg2 div.d1 a.am").First()
	if link.Length() == 0 {
		link = row.Find("a[href]").First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return rec, false
	}
	rec.URL = absoluteURL(baseURL, href)
	rec.Title = strings.TrimSpace(link.Text())

	if img := row.Find("td.msga2 a img.isfoto").First(); img.Length() > 0 {
		rec.Thumbnail, _ = img.Attr("src")
	}

	if containsExchangeMarker(row.Text()) {
		rec.Exchange = true
	}

	extractRowCells(row, &rec)
	return rec, true
}

// extractRowCells reads year/engine/price positionally from the option cells.
// Most brands render four cells; an all-electric inventory has no engine
// column and renders three. Anything else falls back to scanning every cell
// for a plausible 4-digit year and a €-bearing price token.
func extractRowCells(row *goquery.Selection, rec *Record) {
	opts := row.Find("td.msga2-o.pp6 a.amopt")
	texts := make([]string, 0, opts.Length())
	opts.Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})

	switch len(texts) {
	case 4:
		rec.Year = parseYear(texts[1])
		rec.EngineText = texts[2]
		rec.Price = parsePrice(texts[3])
	case 3:
		rec.Year = parseYear(texts[1])
		rec.Price = parsePrice(texts[2])
	}

	// Positional reads miss on pages that shuffle the column order; scan the
	// whole row for whatever is still unresolved.
	if rec.Year == nil || rec.Price == nil {
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if rec.Year == nil {
				rec.Year = parseYear(text)
			}
			if rec.Price == nil && strings.Contains(text, "€") {
				rec.Price = parsePrice(text)
			}
		})
	}

	if m := row.Find("td.msga2-r.pp6 a.amopt").First(); m.Length() > 0 {
		rec.Mileage = parseMileage(m.Text())
	}
}

// NextPage returns the absolute URL of the next index page, if the page
// carries a recognized pagination link.
func NextPage(html, baseURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	var next string
	doc.Find("a.navi").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !nextPageLabels[strings.TrimSpace(s.Text())] {
			return true
		}
		if href, ok := s.Attr("href"); ok {
			next = absoluteURL(baseURL, href)
			return false
		}
		return true
	})

	return next, next != ""
}

func containsExchangeMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range exchangeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseYear(text string) *int {
	text = strings.TrimSpace(text)
	if len(text) != 4 {
		return nil
	}
	year, err := strconv.Atoi(text)
	if err != nil || year < 1900 || year > time.Now().Year()+1 {
		return nil
	}
	return intPtr(year)
}

func parsePrice(text string) *int {
	return digitsToInt(text)
}

// parseMileage handles the "tūkst." (thousands) suffix the site uses on
// index rows.
func parseMileage(text string) *int {
	n := digitsToInt(text)
	if n == nil {
		return nil
	}
	if strings.Contains(text, "tūkst.") {
		return intPtr(*n * 1000)
	}
	return n
}

func digitsToInt(text string) *int {
	digits := strings.Join(digitsPattern.FindAllString(text, -1), "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return intPtr(n)
}
