package product

import (
	"encoding/json"
	"fmt"
)

// NoDescription is stored when the description block cannot be located.
const NoDescription = "no description"

// Details carries the fixed metadata keys from the product details panel.
type Details struct {
	ModelNo     Field[string] `json:"MODEL_NO"`
	ReleaseDate Field[string] `json:"RELEASE_DATE"`
	Series      Field[string] `json:"SERIES"`
	Nickname    Field[string] `json:"NICKNAME"`
	ColorWay    Field[string] `json:"COLOR_WAY"`
}

// Record is one product as assembled from its detail page.
// Every field is extracted independently of the others.
type Record struct {
	SourceURL      string
	Title          Field[string]
	Description    string
	Price          Field[string]
	SizeType       Field[string]
	ProductSize    Field[SizeChart]
	ProductDetails Field[Details]
	ImagesLinks    Field[[]string]
}

// Row is the persisted shape of a Record. JSON-typed columns are opaque
// text; nil means NULL.
type Row struct {
	ID             string
	Title          *string
	Description    *string
	Price          *string
	SizeType       *string
	ProductSize    *string
	ProductDetails *string
	ImagesLinks    *string
}

// Row encodes the record for storage.
func (r Record) Row() (Row, error) {
	size, err := encodeField(r.ProductSize)
	if err != nil {
		return Row{}, fmt.Errorf("encode product_size: %w", err)
	}
	details, err := encodeField(r.ProductDetails)
	if err != nil {
		return Row{}, fmt.Errorf("encode product_details: %w", err)
	}
	images, err := encodeField(r.ImagesLinks)
	if err != nil {
		return Row{}, fmt.Errorf("encode images_links: %w", err)
	}
	desc := r.Description
	return Row{
		Title:          r.Title.Ptr(),
		Description:    &desc,
		Price:          r.Price.Ptr(),
		SizeType:       r.SizeType.Ptr(),
		ProductSize:    size,
		ProductDetails: details,
		ImagesLinks:    images,
	}, nil
}

func encodeField[T any](f Field[T]) (*string, error) {
	v, ok := f.Get()
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}
