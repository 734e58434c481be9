package ngff

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Root attribute keys that identify a dataset layout.
const (
	plateAttrKey       = "plate"
	multiscalesAttrKey = "multiscales"
	omeroAttrKey       = "omero"
	wellAttrKey        = "well"
)

// AxisMeta declares the semantic kind, name, and unit of one array
// dimension.
type AxisMeta struct {
	Name string `json:"name"`
	Type string `json:"type"` // "time", "channel", or "space"
	Unit string `json:"unit,omitempty"`
}

// DefaultAxes returns the canonical TCZYX axis list.
func DefaultAxes() []AxisMeta {
	return []AxisMeta{
		{Name: "T", Type: "time", Unit: "second"},
		{Name: "C", Type: "channel"},
		{Name: "Z", Type: "space", Unit: "micrometer"},
		{Name: "Y", Type: "space", Unit: "micrometer"},
		{Name: "X", Type: "space", Unit: "micrometer"},
	}
}

// TransformationMeta declares a coordinate transformation relating an
// array's index space to physical units.
type TransformationMeta struct {
	Type        string    `json:"type"` // "identity", "scale", or "translation"
	Scale       []float64 `json:"scale,omitempty"`
	Translation []float64 `json:"translation,omitempty"`
}

// DatasetMeta references one resolution level of a multiscale image.
type DatasetMeta struct {
	Path                      string               `json:"path"`
	CoordinateTransformations []TransformationMeta `json:"coordinateTransformations"`
}

// MultiScaleMeta describes a multiscale image: axes plus one dataset entry
// per resolution level.
type MultiScaleMeta struct {
	Version                   string               `json:"version"`
	Name                      string               `json:"name,omitempty"`
	Axes                      []AxisMeta           `json:"axes"`
	Datasets                  []DatasetMeta        `json:"datasets"`
	CoordinateTransformations []TransformationMeta `json:"coordinateTransformations,omitempty"`
	Metadata                  map[string]any       `json:"metadata,omitempty"`
}

// DatasetPaths returns the paths of all resolution levels.
func (m *MultiScaleMeta) DatasetPaths() []string {
	paths := make([]string, len(m.Datasets))
	for i, d := range m.Datasets {
		paths[i] = d.Path
	}
	return paths
}

// WindowMeta is an OMERO channel rendering window.
type WindowMeta struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// ChannelMeta is one OMERO display channel.
type ChannelMeta struct {
	Active      bool       `json:"active"`
	Coefficient float64    `json:"coefficient"`
	Color       string     `json:"color"`
	Family      string     `json:"family"`
	Inverted    bool       `json:"inverted"`
	Label       string     `json:"label"`
	Window      WindowMeta `json:"window"`
}

// RDefsMeta holds OMERO rendering defaults.
type RDefsMeta struct {
	DefaultT int    `json:"defaultT"`
	DefaultZ int    `json:"defaultZ"`
	Model    string `json:"model,omitempty"`
}

// OMEROMeta is the OMERO display-settings block of a position.
type OMEROMeta struct {
	ID       int           `json:"id"`
	Name     string        `json:"name,omitempty"`
	Version  string        `json:"version,omitempty"`
	Channels []ChannelMeta `json:"channels"`
	RDefs    *RDefsMeta    `json:"rdefs,omitempty"`
}

// ImagesMeta is the metadata document of a position group: multiscale image
// descriptions plus the OMERO display block.
type ImagesMeta struct {
	Multiscales []MultiScaleMeta `json:"multiscales"`
	Omero       *OMEROMeta       `json:"omero,omitempty"`
}

// ImageRef places one position group within a well.
type ImageRef struct {
	Acquisition int    `json:"acquisition"`
	Path        string `json:"path"`
}

// WellMeta is the metadata document of a well group.
type WellMeta struct {
	Images  []ImageRef `json:"images"`
	Version string     `json:"version,omitempty"`
}

// PlateAxisMeta names one row or column of a plate.
type PlateAxisMeta struct {
	Name string `json:"name"`
}

// WellIndexMeta places one well within the plate grid.
type WellIndexMeta struct {
	Path        string `json:"path"` // "<row>/<col>"
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
}

// AcquisitionMeta identifies one acquisition run of a plate.
type AcquisitionMeta struct {
	ID                int    `json:"id"`
	Name              string `json:"name,omitempty"`
	MaximumFieldCount int    `json:"maximumfieldcount,omitempty"`
}

// PlateMeta is the metadata document of a plate group: the flat registry of
// rows, columns, and well placements.
type PlateMeta struct {
	Version      string            `json:"version"`
	Name         string            `json:"name,omitempty"`
	Acquisitions []AcquisitionMeta `json:"acquisitions,omitempty"`
	Rows         []PlateAxisMeta   `json:"rows"`
	Columns      []PlateAxisMeta   `json:"columns"`
	Wells        []WellIndexMeta   `json:"wells"`
	FieldCount   int               `json:"field_count,omitempty"`
}

// -----------------------------------------------------------------------------
// Parsing
// -----------------------------------------------------------------------------

// decodeAttr converts a JSON-decoded attribute subtree into a typed
// document.
func decodeAttr(raw any, v any) error {
	data, err := jsonCodec.Marshal(raw)
	if err != nil {
		return err
	}
	if err := jsonCodec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return nil
}

// ParseImagesMeta parses a position group's attribute document. The
// multiscales key must be present and structurally complete.
func ParseImagesMeta(attrs map[string]any) (*ImagesMeta, error) {
	rawMS, ok := attrs[multiscalesAttrKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q key", ErrInvalidMetadata, multiscalesAttrKey)
	}
	meta := &ImagesMeta{}
	if err := decodeAttr(rawMS, &meta.Multiscales); err != nil {
		return nil, err
	}
	if len(meta.Multiscales) == 0 {
		return nil, fmt.Errorf("%w: empty multiscales list", ErrInvalidMetadata)
	}
	for _, ms := range meta.Multiscales {
		if len(ms.Axes) == 0 || len(ms.Datasets) == 0 {
			return nil, fmt.Errorf("%w: multiscale entry missing axes or datasets", ErrInvalidMetadata)
		}
	}
	if rawOmero, ok := attrs[omeroAttrKey]; ok {
		meta.Omero = &OMEROMeta{}
		if err := decodeAttr(rawOmero, meta.Omero); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

// ParseWellMeta parses a well group's attribute document.
func ParseWellMeta(attrs map[string]any) (*WellMeta, error) {
	raw, ok := attrs[wellAttrKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q key", ErrInvalidMetadata, wellAttrKey)
	}
	meta := &WellMeta{}
	if err := decodeAttr(raw, meta); err != nil {
		return nil, err
	}
	if len(meta.Images) == 0 {
		return nil, fmt.Errorf("%w: well has no image placements", ErrInvalidMetadata)
	}
	return meta, nil
}

// ParsePlateMeta parses a plate group's attribute document.
func ParsePlateMeta(attrs map[string]any) (*PlateMeta, error) {
	raw, ok := attrs[plateAttrKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q key", ErrInvalidMetadata, plateAttrKey)
	}
	meta := &PlateMeta{}
	if err := decodeAttr(raw, meta); err != nil {
		return nil, err
	}
	if len(meta.Rows) == 0 || len(meta.Columns) == 0 {
		return nil, fmt.Errorf("%w: plate has no rows or columns", ErrInvalidMetadata)
	}
	return meta, nil
}
