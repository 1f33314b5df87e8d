package product

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldJSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(None[string]())
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	raw, err = json.Marshal(Some(""))
	require.NoError(t, err)
	assert.Equal(t, `""`, string(raw))

	var f Field[string]
	require.NoError(t, json.Unmarshal([]byte(`"x"`), &f))
	v, ok := f.Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	assert.False(t, f.Present())
	assert.Nil(t, f.Ptr())
}

func TestRecordRowAllAbsent(t *testing.T) {
	t.Parallel()

	row, err := Record{Description: NoDescription}.Row()
	require.NoError(t, err)

	assert.Nil(t, row.Title)
	assert.Nil(t, row.Price)
	assert.Nil(t, row.SizeType)
	assert.Nil(t, row.ProductSize)
	assert.Nil(t, row.ProductDetails)
	assert.Nil(t, row.ImagesLinks)
	require.NotNil(t, row.Description)
	assert.Equal(t, NoDescription, *row.Description)
}

func TestRecordRowEncodesJSONColumns(t *testing.T) {
	t.Parallel()

	rec := Record{
		Title:       Some("Air Max 1"),
		Description: "classic",
		Price:       Some("$150.00"),
		SizeType:    Some("US Men"),
		ProductSize: Some(BuildSizeChart([]string{"$150.00"})),
		ProductDetails: Some(Details{
			ModelNo:     Some("DZ4549-001"),
			ReleaseDate: Some("2023-03-26"),
		}),
		ImagesLinks: Some([]string{"https://cdn.example.com/a.jpg"}),
	}
	row, err := rec.Row()
	require.NoError(t, err)

	assert.Equal(t, "Air Max 1", *row.Title)
	assert.Equal(t, `{"us(m)3.5/us(w)5/uk3/eu35.5/cm22.5":"$150.00"}`, *row.ProductSize)
	assert.Equal(t,
		`{"MODEL_NO":"DZ4549-001","RELEASE_DATE":"2023-03-26","SERIES":null,"NICKNAME":null,"COLOR_WAY":null}`,
		*row.ProductDetails)
	assert.Equal(t, `["https://cdn.example.com/a.jpg"]`, *row.ImagesLinks)
}

func TestRecordRowEmptyImagesIsPresent(t *testing.T) {
	t.Parallel()

	row, err := Record{ImagesLinks: Some([]string{})}.Row()
	require.NoError(t, err)
	require.NotNil(t, row.ImagesLinks)
	assert.Equal(t, "[]", *row.ImagesLinks)
}
