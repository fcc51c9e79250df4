package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Pagination
		want Pagination
	}{
		{name: "defaults", in: Pagination{}, want: Pagination{Page: 1, Limit: 10}},
		{name: "clamps limit", in: Pagination{Page: 2, Limit: 500}, want: Pagination{Page: 2, Limit: 100}},
		{name: "negative page", in: Pagination{Page: -3, Limit: 5}, want: Pagination{Page: 1, Limit: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Normalize(10, 100))
		})
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Pagination{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 40, Pagination{Page: 3, Limit: 20}.Offset())
	assert.Equal(t, 0, Pagination{Page: 0, Limit: 20}.Offset())
}

func TestInfo(t *testing.T) {
	info := Pagination{Page: 2, Limit: 10}.Info(35)
	assert.Equal(t, PageInfo{Total: 35, Page: 2, Limit: 10}, info)
}
