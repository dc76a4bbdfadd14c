package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

const detailPage = `
<html><body>
	<table class="options_list">
		<tr><td>Izlaiduma gads:</td><td>2015</td></tr>
		<tr><td>Dzinējs:</td><td>2.0 dīzelis</td></tr>
		<tr><td>Ātrumkārba:</td><td>Automāts</td></tr>
		<tr><td>Nobraukums, km:</td><td>210 000</td></tr>
		<tr><td>Virsbūves tips:</td><td>Universāls</td></tr>
		<tr><td>Krāsa:</td><td>Melna</td></tr>
	</table>
	<table>
		<tr><td class="msg2">Datums:</td><td>12.01.2026</td></tr>
		<tr><td class="msg2">Pilsēta:</td><td>Rīga</td></tr>
	</table>
	<span class="ads_price" id="tdo_8">9 200 €</span>
</body></html>`

func TestDetailFullPage(t *testing.T) {
	rec := Detail(detailPage, Record{ExternalID: "12345", Brand: "BMW", Model: "320"}, testNow)

	require.NotNil(t, rec.Year)
	assert.Equal(t, 2015, *rec.Year)
	require.NotNil(t, rec.EngineVolume)
	assert.Equal(t, 2.0, *rec.EngineVolume)
	assert.Equal(t, "Diesel", rec.EngineType)
	assert.Equal(t, "Automatic", rec.Transmission)
	require.NotNil(t, rec.Mileage)
	assert.Equal(t, 210000, *rec.Mileage)
	assert.Equal(t, "Universāls", rec.BodyType)
	assert.Equal(t, "Melna", rec.Color)
	assert.Equal(t, "2026-01-12", rec.ListingDate)
	assert.Equal(t, "Rīga", rec.Region)
	require.NotNil(t, rec.Price)
	assert.Equal(t, 9200, *rec.Price)
	assert.False(t, rec.Exchange)
}

func TestDetailPriceOverridesIndexPrice(t *testing.T) {
	indexPrice := 9500
	rec := Detail(detailPage, Record{ExternalID: "12345", Price: &indexPrice}, testNow)
	require.NotNil(t, rec.Price)
	assert.Equal(t, 9200, *rec.Price)
}

func TestDetailDefaults(t *testing.T) {
	rec := Detail("<html><body><p>bare page</p></body></html>", Record{ExternalID: "1"}, testNow)
	assert.Equal(t, "2026-03-15", rec.ListingDate)
	assert.Equal(t, "Nav norādīts", rec.Region)
}

func TestDetailFieldIDsWinOverTable(t *testing.T) {
	html := `
	<table class="options_list">
		<tr><td>Gads:</td><td>2010</td></tr>
		<tr><td>Krāsa:</td><td>Zila</td></tr>
	</table>
	<table><tr>
		<td class="ads_opt" id="tdo_18">2014</td>
		<td class="ads_opt" id="tdo_17">Sarkana</td>
	</tr></table>`

	rec := Detail(html, Record{ExternalID: "1"}, testNow)
	require.NotNil(t, rec.Year)
	assert.Equal(t, 2014, *rec.Year)
	assert.Equal(t, "Sarkana", rec.Color)
}

func TestDetailDetectsExchange(t *testing.T) {
	html := `<html><body><div class="msg_div">Vēlos mainīt pret mazāku auto.</div></body></html>`
	rec := Detail(html, Record{ExternalID: "1"}, testNow)
	assert.True(t, rec.Exchange)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12.01.2026", "2026-01-12"},
		{"2026-01-12", "2026-01-12"},
		{"01/12/2026", "2026-01-12"},
		{"12.01.2026 14:35", "2026-01-12"},
		{"nonsense", "2026-03-15"},
		{"", "2026-03-15"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDate(tt.in, testNow), tt.in)
	}
}

func TestClassifyFuel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2.0 dīzelis", "Diesel"},
		{"1.8 benzīns", "Petrol"},
		{"petrol 1.4", "Petrol"},
		{"hybrid", "Hybrid"},
		{"elektriskais", "Electric"},
		{"1.6 бензин", "Petrol"},
		{"gāze/benzīns", "Petrol"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyFuel(tt.in), tt.in)
	}
}

func TestClassifyTransmission(t *testing.T) {
	assert.Equal(t, "Manual", classifyTransmission("Manuālā"))
	assert.Equal(t, "Automatic", classifyTransmission("Automāts"))
	assert.Equal(t, "Automatic", classifyTransmission("автомат"))
	assert.Equal(t, "Tiptronic", classifyTransmission("Tiptronic"))
}
