package product

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OutOfStock marks a size variant whose price lookup came back empty.
const OutOfStock = "out of stock"

// SizeRow is one line of the shoe size reference table.
type SizeRow struct {
	USMen   string
	USWomen string
	UK      string
	EU      string
	CM      string
}

// Label renders the composite key used in the size chart.
func (r SizeRow) Label() string {
	return fmt.Sprintf("us(m)%s/us(w)%s/uk%s/eu%s/cm%s", r.USMen, r.USWomen, r.UK, r.EU, r.CM)
}

// sizeTable is indexed by the DOM position of a variant selector.
var sizeTable = [...]SizeRow{
	{"3.5", "5", "3", "35.5", "22.5"},
	{"4", "5.5", "3.5", "36", "23"},
	{"4.5", "6", "4", "36.5", "23.5"},
	{"5", "6.5", "4.5", "37.5", "23.5"},
	{"5.5", "7", "5", "38", "24"},
	{"6", "7.5", "5.5", "38.5", "24"},
	{"6.5", "8", "6", "39", "24.5"},
	{"7", "8.5", "6", "40", "25"},
	{"7.5", "9", "6.5", "40.5", "25.5"},
	{"8", "9.5", "7", "41", "26"},
	{"8.5", "10", "7.5", "42", "26.5"},
	{"9", "10.5", "8", "42.5", "27"},
	{"9.5", "11", "8.5", "43", "27.5"},
	{"10", "11.5", "9", "44", "28"},
	{"10.5", "12", "9.5", "44.5", "28.5"},
	{"11", "12.5", "10", "45", "29"},
	{"11.5", "13", "10.5", "45.5", "29.5"},
	{"12", "13.5", "11", "46", "30"},
	{"12.5", "14", "11.5", "47", "30.5"},
	{"13", "14.5", "12", "47.5", "31"},
	{"13.5", "15", "12.5", "48", "31.5"},
	{"14", "15.5", "13", "48.5", "32"},
	{"15", "16.5", "14", "49.5", "33"},
	{"16", "17.5", "15", "50.5", "34"},
	{"17", "18.5", "16", "51.5", "35"},
	{"18", "19.5", "17", "52.5", "36"},
}

// SizeChartRows is the number of rows in the reference table.
const SizeChartRows = len(sizeTable)

// SizeRowAt returns the reference row for a variant position.
func SizeRowAt(i int) (SizeRow, bool) {
	if i < 0 || i >= len(sizeTable) {
		return SizeRow{}, false
	}
	return sizeTable[i], true
}

// SizeEntry pairs a size label with a price or the out-of-stock marker.
type SizeEntry struct {
	Label string
	Value string
}

// SizeChart is an ordered size-to-price mapping. It encodes as a JSON object
// whose keys keep reference-table order.
type SizeChart []SizeEntry

// BuildSizeChart maps positional variant prices onto the reference table.
// Empty prices become OutOfStock. Values past the table end are ignored.
func BuildSizeChart(values []string) SizeChart {
	n := min(len(values), len(sizeTable))
	chart := make(SizeChart, 0, n)
	for i := 0; i < n; i++ {
		v := values[i]
		if v == "" {
			v = OutOfStock
		}
		chart = append(chart, SizeEntry{Label: sizeTable[i].Label(), Value: v})
	}
	return chart
}

// Lookup returns the value stored under label.
func (c SizeChart) Lookup(label string) (string, bool) {
	for _, e := range c {
		if e.Label == label {
			return e.Value, true
		}
	}
	return "", false
}

// MarshalJSON writes the chart as an object in row order.
func (c SizeChart) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object back into row order.
func (c *SizeChart) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("size chart: expected object, got %v", tok)
	}
	out := SizeChart{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("size chart: unexpected key %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("size chart value for %q: %w", key, err)
		}
		out = append(out, SizeEntry{Label: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}
