package roster

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	t.Parallel()

	rec, err := ParseRecord(RawRow{
		"Full Name":              "Mai Nguyen",
		"gender":                 "f",
		"Department":             "Engineering",
		"Position":               "Engineer",
		"Employee Status":        "active",
		"Join Date (yyyy/mm/dd)": "2024/02/01",
		"Birthday Date":          45000.0,
		"Exit Reason Category":   "career & growth",
		"Favourite Colour":       "teal",
		"Empty Column":           "",
	})
	require.NoError(t, err)

	assert.Equal(t, "Mai Nguyen", rec.FullName)
	assert.Equal(t, GenderFemale, rec.Gender)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "Career & Growth", rec.ExitReasonCategory)
	require.NotNil(t, rec.JoinDate)
	assert.True(t, rec.JoinDate.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, rec.BirthDate)
	assert.Equal(t, map[string]string{"Favourite Colour": "teal"}, rec.Extra)
	assert.Empty(t, rec.ID)
}

func TestParseRecord_RejectsBadDate(t *testing.T) {
	t.Parallel()

	_, err := ParseRecord(RawRow{"Full Name": "A", "Join Date": "someday"})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.HasField(FieldJoinDate))
}

func TestParseChanges(t *testing.T) {
	t.Parallel()

	c, err := ParseChanges(RawRow{
		"Employee Status": "departed",
		"Exit Date":       "2024-05-31",
		"Exit Type":       "resigned",
		"Birthday Date":   nil,
		"Department":      "Sales",
	})
	require.NoError(t, err)

	require.NotNil(t, c.Status)
	assert.Equal(t, StatusDeparted, *c.Status)
	require.NotNil(t, c.ExitType)
	assert.Equal(t, ExitTypeResigned, *c.ExitType)
	assert.True(t, c.ExitDateSet)
	require.NotNil(t, c.ExitDate)
	assert.True(t, c.BirthDateSet)
	assert.Nil(t, c.BirthDate)
	require.NotNil(t, c.Department)
	assert.Equal(t, "Sales", *c.Department)
	assert.Nil(t, c.FullName)
	assert.False(t, c.JoinDateSet)
}

func TestParseChanges_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseChanges(RawRow{"Record ID": "x", "Shoe Size": "42", "Join Date": "never"})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.HasField(FieldRecordID))
	assert.True(t, verr.HasField(Field("Shoe Size")))
	assert.True(t, verr.HasField(FieldJoinDate))
}

func TestParseChanges_AppliesThroughUpdate(t *testing.T) {
	t.Parallel()

	table := tableOf(activeRecord("Aiko Tanaka", day(2022, time.June, 1)))
	c, err := ParseChanges(RawRow{
		"Employee Status":      "Departed",
		"Exit Date":            "2024-05-31",
		"Exit Type":            "Resigned",
		"Exit Reason Category": "Relocation",
	})
	require.NoError(t, err)

	next, err := Update(table, 0, c)
	require.NoError(t, err)
	assert.Equal(t, StatusDeparted, next.Records[0].Status)
	assert.Equal(t, StatusActive, table.Records[0].Status, "input table is not modified")
}

func TestParseRecord_AliasPrecedence(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		rec, err := ParseRecord(RawRow{
			"Name":          "Alias Name",
			"Full Name":     "Canonical Name",
			"Hire Date":     "2024-02-01",
			"Joining Date":  "not a date",
			"Employee Name": "",
		})
		require.NoError(t, err)
		assert.Equal(t, "Canonical Name", rec.FullName)
		require.NotNil(t, rec.JoinDate)
		assert.True(t, rec.JoinDate.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	}

	rec, err := ParseRecord(RawRow{"Name": "Second", "Employee Name": "First"})
	require.NoError(t, err)
	assert.Equal(t, "First", rec.FullName)
}

func TestParseChanges_AliasPrecedence(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		c, err := ParseChanges(RawRow{"Dept": "Alias", "Department": "Canonical"})
		require.NoError(t, err)
		require.NotNil(t, c.Department)
		assert.Equal(t, "Canonical", *c.Department)
	}
}
