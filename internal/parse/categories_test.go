package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootPath = "/lv/transport/cars/"

const brandsPage = `
<html><body>
	<a href="/lv/">LV</a>
	<a href="/ru/transport/cars/">RU</a>
	<table>
		<tr><td><h4 class="category"><a class="a_category" href="/lv/transport/cars/audi/">Audi</a></h4><span class="category_cnt">(312)</span></td></tr>
		<tr><td><h4 class="category"><a class="a_category" href="/lv/transport/cars/bmw/">BMW</a></h4><span class="category_cnt">(428)</span></td></tr>
		<tr><td><h4 class="category"><a class="a_category" href="/lv/transport/cars/search/">Meklēt search</a></h4></td></tr>
	</table>
</body></html>`

func TestBrands(t *testing.T) {
	brands := Brands(brandsPage, baseURL, rootPath)
	require.Len(t, brands, 2)

	assert.Equal(t, "Audi", brands[0].Name)
	assert.Equal(t, "audi", brands[0].Slug)
	assert.Equal(t, baseURL+"/lv/transport/cars/audi/", brands[0].URL)
	assert.Equal(t, 312, brands[0].Count)

	assert.Equal(t, "BMW", brands[1].Name)
	assert.Equal(t, 428, brands[1].Count)
}

func TestBrandsPlainLinkFallback(t *testing.T) {
	// Older markup without the category heading still yields brands.
	html := `
	<a href="/lv/transport/cars/volvo/">Volvo</a>
	<a href="/lv/transport/cars/saab/">Saab</a>
	<a href="/lv/other/">Other section</a>`

	brands := Brands(html, baseURL, rootPath)
	require.Len(t, brands, 2)
	assert.Equal(t, "Volvo", brands[0].Name)
	assert.Equal(t, "Saab", brands[1].Name)
}

func TestBrandsEmptyPage(t *testing.T) {
	assert.Empty(t, Brands("<html><body></body></html>", baseURL, rootPath))
}

func TestModels(t *testing.T) {
	html := `
	<h4 class="category"><a class="a_category" href="/lv/transport/cars/bmw/320/">320</a></h4>
	<h4 class="category"><a class="a_category" href="/lv/transport/cars/bmw/520/">520</a></h4>
	<h4 class="category"><a class="a_category" href="/lv/transport/cars/bmw/">BMW</a></h4>
	<a class="a_category" href="/lv/transport/cars/bmw/page2.html">2</a>`

	models := Models(html, baseURL, "/lv/transport/cars/bmw/", "BMW")
	require.Len(t, models, 2)
	assert.Equal(t, "320", models[0].Name)
	assert.Equal(t, "520", models[1].Name)
	assert.Equal(t, baseURL+"/lv/transport/cars/bmw/320/", models[0].URL)
}

func TestModelsSkipsBrandSelfLink(t *testing.T) {
	html := `<a class="a_category" href="/lv/transport/cars/bmw/other/">bmw</a>`
	models := Models(html, baseURL, "/lv/transport/cars/bmw/", "BMW")
	assert.Empty(t, models)
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, baseURL+"/a/b", absoluteURL(baseURL, "/a/b"))
	assert.Equal(t, baseURL+"/a/b", absoluteURL(baseURL+"/", "/a/b"))
	assert.Equal(t, "https://other.example/x", absoluteURL(baseURL, "https://other.example/x"))
}
