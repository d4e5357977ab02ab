package tags

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableDeduplicates(t *testing.T) {
	tbl := NewTable()
	require.Equal(t, 1, tbl.Len())

	road := osm.Tags{{Key: "highway", Value: "primary"}, {Key: "name", Value: "Main"}}
	a := tbl.Add(road)
	b := tbl.Add(osm.Tags{{Key: "highway", Value: "primary"}, {Key: "name", Value: "Main"}})
	c := tbl.Add(osm.Tags{{Key: "highway", Value: "service"}})

	assert.Equal(t, uint32(1), a)
	assert.Equal(t, a, b)
	assert.Equal(t, uint32(2), c)
	assert.Equal(t, uint32(0), tbl.Add(nil))
	assert.Equal(t, 3, tbl.Len())

	got, ok := tbl.Get(a)
	require.True(t, ok)
	assert.Equal(t, road, got)
	assert.Equal(t, "Main", got.Find("name"))

	empty, ok := tbl.Get(0)
	assert.True(t, ok)
	assert.Empty(t, empty)

	_, ok = tbl.Get(99)
	assert.False(t, ok)
}

func TestTableKeyIsUnambiguous(t *testing.T) {
	tbl := NewTable()
	a := tbl.Add(osm.Tags{{Key: "ab", Value: "c"}})
	b := tbl.Add(osm.Tags{{Key: "a", Value: "bc"}})
	assert.NotEqual(t, a, b)
}
