package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func recordIDs(t *DerivedTable) []string {
	ids := make([]string, 0, t.Len())
	for _, r := range t.Records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestFilter_Apply(t *testing.T) {
	t.Parallel()

	table := insightsTable()

	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "zero filter", filter: Filter{}, want: []string{"a", "b", "c", "d", "e", "f", "g"}},
		{name: "department case-insensitive", filter: Filter{Departments: []string{"sales"}}, want: []string{"d", "e"}},
		{name: "status", filter: Filter{Statuses: []Status{StatusActive}}, want: []string{"a", "b", "g"}},
		{name: "vendor direct hire", filter: Filter{Vendors: []string{"Direct Hire"}}, want: []string{"b", "d", "f", "g"}},
		{name: "join year range", filter: Filter{JoinYearFrom: 2022, JoinYearTo: 2022}, want: []string{"a", "c"}},
		{name: "open ended range", filter: Filter{JoinYearFrom: 2023}, want: []string{"b", "d", "e", "g"}},
		{name: "combined", filter: Filter{Departments: []string{"Engineering", "Support"}, Statuses: []Status{StatusDeparted}}, want: []string{"c", "f"}},
		{name: "gender", filter: Filter{Genders: []Gender{GenderMale}}, want: []string{}},
		{name: "employment kind", filter: Filter{EmploymentKinds: []string{"full-time"}}, want: []string{"a", "b", "c", "d", "e", "f", "g"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.filter.Apply(table)
			assert.Equal(t, tc.want, recordIDs(got))
			assert.Equal(t, table.AsOf, got.AsOf)
		})
	}

	assert.Equal(t, 7, table.Len(), "Apply must not modify its input")
}

func TestFilter_KeyIgnoresOrderAndCase(t *testing.T) {
	t.Parallel()

	a := Filter{Departments: []string{"Sales", "Engineering"}, Statuses: []Status{StatusActive}}
	b := Filter{Departments: []string{"engineering", " sales"}, Statuses: []Status{"active"}}
	c := Filter{Departments: []string{"Sales"}}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.True(t, Filter{}.IsZero())
	assert.False(t, c.IsZero())
}

func TestTable_Search(t *testing.T) {
	t.Parallel()

	table := &Table{Records: []Record{
		{ID: "id-1", FullName: "Aiko Tanaka", ManagerID: "mgr-7"},
		{ID: "id-2", FullName: "Kenji Sato"},
		{ID: "id-3", FullName: "Aiko Tanaka", ManagerID: "mgr-9"},
	}}

	assert.Equal(t, []int{0, 2}, table.Search("  aiko "))
	assert.Equal(t, []int{1}, table.Search("ID-2"))
	assert.Equal(t, []int{2}, table.Search("mgr-9"))
	assert.Nil(t, table.Search(""))
	assert.Nil(t, table.Search("nobody"))
}
