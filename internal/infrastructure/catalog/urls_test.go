package catalog

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDialectAURL(t *testing.T) {
	raw, err := BuildDialectAURL("https://shop.example/almacen/_/N-1?Ntt=arroz&No=0", 50, 50)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/almacen/_/N-1", u.Path)
	assert.Equal(t, "json", q.Get(ParamFormat))
	assert.Equal(t, "50", q.Get(ParamOffset))
	assert.Equal(t, "50", q.Get(ParamPageSize))
	assert.Equal(t, "arroz", q.Get("Ntt"))
}

func TestRepairDialectAURL(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantPath  string
		wantQuery url.Values
	}{
		{
			name:      "smuggled query",
			raw:       "https://shop.example/almacen/_/N-1%3FNtt=arroz",
			wantPath:  "/almacen/_/N-1",
			wantQuery: url.Values{"Ntt": {"arroz"}},
		},
		{
			name:      "smuggled query merged with real query",
			raw:       "https://shop.example/almacen/_/N-1%3FNtt=arroz?Nrpp=10",
			wantPath:  "/almacen/_/N-1",
			wantQuery: url.Values{"Ntt": {"arroz"}, "Nrpp": {"10"}},
		},
		{
			name:      "doubled prefix",
			raw:       "https://shop.example/almacen/bebidas/almacen/bebidas/_/N-1",
			wantPath:  "/almacen/bebidas/_/N-1",
			wantQuery: url.Values{},
		},
		{
			name:      "clean url untouched",
			raw:       "https://shop.example/almacen/_/N-1?Ntt=yerba",
			wantPath:  "/almacen/_/N-1",
			wantQuery: url.Values{"Ntt": {"yerba"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := url.Parse(tt.raw)
			require.NoError(t, err)
			original := in.String()

			got := RepairDialectAURL(in)

			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, tt.wantQuery, got.Query())
			assert.Equal(t, original, in.String(), "input must not be modified")
		})
	}
}

func TestBuildDialectBURL(t *testing.T) {
	raw, err := BuildDialectBURL("https://search.cnstrc.com/browse/group_id/123?key=abc&page=1&num_results_per_page=24", 3, 100)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "3", u.Query().Get(ParamPage))
	assert.Equal(t, "100", u.Query().Get(ParamResultsPerPage))
	assert.Equal(t, "abc", u.Query().Get("key"))
}

func TestTemplatePageSize(t *testing.T) {
	assert.Equal(t, 24, TemplatePageSize("https://search.example/browse/x?num_results_per_page=24"))
	assert.Equal(t, 0, TemplatePageSize("https://search.example/browse/x"))
	assert.Equal(t, 0, TemplatePageSize("https://search.example/browse/x?num_results_per_page=-3"))
	assert.Equal(t, 0, TemplatePageSize("://bad"))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://shop.example", Origin("https://shop.example/almacen/_/N-1?x=1"))
	assert.Equal(t, "http://localhost:8080", Origin("http://localhost:8080/a"))
	assert.Equal(t, "", Origin("/relative/path"))
}

func TestAbsolute(t *testing.T) {
	origin := "https://shop.example"

	assert.Equal(t, "https://shop.example/yerba/p", Absolute(origin, "/yerba/p"))
	assert.Equal(t, "https://cdn.example/a.jpg", Absolute(origin, "https://cdn.example/a.jpg"))
	assert.Equal(t, "https://cdn.example/a.jpg", Absolute(origin, "//cdn.example/a.jpg"))
	assert.Equal(t, "", Absolute(origin, "  "))
	assert.Equal(t, "/yerba/p", Absolute("", "/yerba/p"))
}
