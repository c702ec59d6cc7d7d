package crud

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestListOptions_Skip(t *testing.T) {
	cases := []struct {
		page, limit, skip int64
	}{
		{1, 10, 0},
		{2, 10, 10},
		{3, 25, 50},
		{0, 10, 0},
		{-4, 5, 0},
		{2, 0, DefaultLimit},
		{math.MaxInt64 / 50, 100, (math.MaxInt64 / 100) * 100},
		{math.MaxInt64, 100, (math.MaxInt64 / 100) * 100},
		{math.MaxInt64, 1, math.MaxInt64 - 1},
		{math.MaxInt64, math.MaxInt64, math.MaxInt64},
	}
	for _, c := range cases {
		skip := ListOptions{Page: c.page, Limit: c.limit}.Skip()
		require.Equal(t, c.skip, skip, "page=%d limit=%d", c.page, c.limit)
		require.GreaterOrEqual(t, skip, int64(0))
	}
}

func TestListOptions_Normalize(t *testing.T) {
	o := ListOptions{}.Normalize()
	require.Equal(t, DefaultPage, o.Page)
	require.Equal(t, DefaultLimit, o.Limit)

	o = ListOptions{Page: 4, Limit: 50}.Normalize()
	require.Equal(t, int64(4), o.Page)
	require.Equal(t, int64(50), o.Limit)
}

func TestListOptions_SortDoc(t *testing.T) {
	require.Nil(t, ListOptions{}.SortDoc())

	o := ListOptions{Sort: []SortField{{Field: "y"}, {Field: "x", Desc: true}}}
	require.Equal(t, bson.D{{Key: "y", Value: 1}, {Key: "x", Value: -1}}, o.SortDoc())
}

func TestParseSort(t *testing.T) {
	got, err := ParseSort("name, -createdAt")
	require.NoError(t, err)
	require.Equal(t, []SortField{{Field: "name"}, {Field: "createdAt", Desc: true}}, got)

	got, err = ParseSort("subject:desc,status:ASC,sentAt:-1")
	require.NoError(t, err)
	require.Equal(t, []SortField{
		{Field: "subject", Desc: true},
		{Field: "status"},
		{Field: "sentAt", Desc: true},
	}, got)

	got, err = ParseSort("")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseSort_Invalid(t *testing.T) {
	_, err := ParseSort("name:sideways")
	require.Error(t, err)

	_, err = ParseSort("-")
	require.Error(t, err)

	_, err = ParseSort(":asc")
	require.Error(t, err)
}
