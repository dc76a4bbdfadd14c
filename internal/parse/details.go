package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var volumePattern = regexp.MustCompile(`(\d+[.,]\d+)`)

// Label substrings for the specification table, lowercase, per language the
// site serves (Latvian, English, Russian). Matching is substring-based
// because the site is not consistent about punctuation or casing.
var (
	dateLabels       = []string{"datums", "date", "дата"}
	regionLabels     = []string{"reģions", "region", "pilsēta", "city", "location", "atrašanās vieta"}
	yearLabels       = []string{"gads", "year", "год"}
	engineLabels     = []string{"dzinējs", "engine", "двигатель", "мотор"}
	transLabels      = []string{"ātrumkārba", "transmission", "коробка", "кпп"}
	mileageLabels    = []string{"nobraukums", "mileage", "пробег", "odometer"}
	bodyLabels       = []string{"virsbūve", "body", "кузов"}
	colorLabels      = []string{"krāsa", "color", "цвет"}
	inspectionLabels = []string{"tehniskā apskate", "inspection", "техосмотр"}
)

var fuelTypes = []struct {
	name    string
	markers []string
}{
	{"Petrol", []string{"benzīn", "petrol", "gasoline", "бензин"}},
	{"Diesel", []string{"dīzel", "diesel", "дизель"}},
	{"Hybrid", []string{"hibrīd", "hybrid", "гибрид"}},
	{"Electric", []string{"elektr", "electric", "электр"}},
	{"Gas", []string{"gāze", "gas", "газ"}},
}

// specTableStrategies are tried in order; the markup has shipped under at
// least three table classes.
var specTableStrategies = []string{
	"table.options_list tr",
	"table.ads_opt_list tr",
	"table.d1 tr",
}

// Detail enriches a record with everything the listing's own page carries.
// The input record is not mutated; missing fields stay as they were.
func Detail(html string, rec Record, now time.Time) Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		if rec.ListingDate == "" {
			rec.ListingDate = now.Format("2006-01-02")
		}
		return rec
	}

	if containsExchangeMarker(doc.Text()) {
		rec.Exchange = true
	}

	extractLabeledCells(doc, &rec, now)
	extractSpecTable(doc, &rec, now)
	extractFieldIDs(doc, &rec)

	if rec.ListingDate == "" {
		rec.ListingDate = now.Format("2006-01-02")
	}
	if rec.Region == "" {
		rec.Region = "Nav norādīts"
	}

	// The dedicated price element is authoritative when present.
	price := doc.Find("span.ads_price#tdo_8").First()
	if price.Length() == 0 {
		price = doc.Find("span.ads_price, span.l_price").First()
	}
	if price.Length() > 0 {
		if p := digitsToInt(price.Text()); p != nil {
			rec.Price = p
		}
	}

	return rec
}

// extractLabeledCells finds the posting date and region by scanning the
// label/value cell pairs outside the specification table.
func extractLabeledCells(doc *goquery.Document, rec *Record, now time.Time) {
	doc.Find("td.msg2, td.msga2").Each(func(_ int, cell *goquery.Selection) {
		label := strings.ToLower(cell.Text())
		value := strings.TrimSpace(cell.Next().Text())
		if value == "" {
			return
		}
		if matchesAny(label, dateLabels) && rec.ListingDate == "" {
			rec.ListingDate = normalizeDate(value, now)
		}
		if matchesAny(label, regionLabels) && rec.Region == "" {
			rec.Region = value
		}
	})
}

func extractSpecTable(doc *goquery.Document, rec *Record, now time.Time) {
	for _, selector := range specTableStrategies {
		rows := doc.Find(selector)
		if rows.Length() == 0 {
			continue
		}
		rows.Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			label := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
			value := strings.TrimSpace(cells.Eq(1).Text())
			if label == "" || value == "" {
				return
			}
			applySpecField(rec, label, value, now)
		})
		return
	}
}

func applySpecField(rec *Record, label, value string, now time.Time) {
	switch {
	case matchesAny(label, yearLabels):
		if m := regexp.MustCompile(`\d{4}`).FindString(value); m != "" {
			if y, err := strconv.Atoi(m); err == nil && y >= 1900 && y <= now.Year()+1 {
				rec.Year = intPtr(y)
			}
		}
	case matchesAny(label, engineLabels):
		rec.EngineText = value
		if m := volumePattern.FindStringSubmatch(value); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
				rec.EngineVolume = &v
			}
		}
		if fuel := classifyFuel(value); fuel != "" {
			rec.EngineType = fuel
		}
	case matchesAny(label, transLabels):
		rec.Transmission = classifyTransmission(value)
	case matchesAny(label, mileageLabels):
		if n := digitsToInt(value); n != nil {
			rec.Mileage = n
		}
	case matchesAny(label, bodyLabels):
		rec.BodyType = value
	case matchesAny(label, colorLabels):
		rec.Color = value
	case matchesAny(label, inspectionLabels):
		rec.TechInspection = value
	}
}

// extractFieldIDs reads the stable per-field cell IDs the site also renders;
// they win over the label-matched table when both are present.
func extractFieldIDs(doc *goquery.Document, rec *Record) {
	for _, f := range []struct {
		id    string
		apply func(string)
	}{
		{"tdo_18", func(v string) {
			if y := parseYear(regexp.MustCompile(`\d{4}`).FindString(v)); y != nil {
				rec.Year = y
			}
		}},
		{"tdo_32", func(v string) { rec.BodyType = v }},
		{"tdo_17", func(v string) { rec.Color = v }},
		{"tdo_223", func(v string) { rec.TechInspection = v }},
	} {
		cell := doc.Find(fmt.Sprintf("td.ads_opt#%s", f.id)).First()
		if cell.Length() > 0 {
			if v := strings.TrimSpace(cell.Text()); v != "" {
				f.apply(v)
			}
		}
	}
}

func classifyFuel(value string) string {
	lower := strings.ToLower(value)
	for _, fuel := range fuelTypes {
		if matchesAny(lower, fuel.markers) {
			return fuel.name
		}
	}
	return ""
}

// classifyTransmission maps transmission text to Manual/Automatic, passing
// unrecognized values through verbatim.
func classifyTransmission(value string) string {
	lower := strings.ToLower(value)
	switch {
	case matchesAny(lower, []string{"manuāl", "manual", "механика", "ручная"}):
		return "Manual"
	case matchesAny(lower, []string{"automāt", "automatic", "автомат"}):
		return "Automatic"
	default:
		return value
	}
}

// normalizeDate converts the three date formats seen in the wild
// (D.M.Y, Y-M-D, M/D/Y) to ISO form, defaulting to today when unparseable.
func normalizeDate(text string, now time.Time) string {
	text = strings.TrimSpace(text)
	// Posting dates sometimes carry a trailing time.
	if i := strings.IndexByte(text, ' '); i > 0 {
		text = text[:i]
	}

	switch {
	case strings.Contains(text, "."):
		if parts := strings.Split(text, "."); len(parts) == 3 {
			if d, m, y, ok := atoi3(parts[0], parts[1], parts[2]); ok {
				return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
			}
		}
	case strings.Contains(text, "-"):
		if _, err := time.Parse("2006-01-02", text); err == nil {
			return text
		}
	case strings.Contains(text, "/"):
		if parts := strings.Split(text, "/"); len(parts) == 3 {
			if m, d, y, ok := atoi3(parts[0], parts[1], parts[2]); ok {
				return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
			}
		}
	}
	return now.Format("2006-01-02")
}

func atoi3(a, b, c string) (int, int, int, bool) {
	x, err1 := strconv.Atoi(strings.TrimSpace(a))
	y, err2 := strconv.Atoi(strings.TrimSpace(b))
	z, err3 := strconv.Atoi(strings.TrimSpace(c))
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return x, y, z, true
}

func matchesAny(text string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
