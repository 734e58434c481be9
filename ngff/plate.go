package ngff

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmicrodata/ngff/zarr"
)

// Plate is the root group of a high-content-screening dataset. It owns the
// row-name and column-name index registries and the flat plate document
// listing rows, columns, and well placements.
type Plate struct {
	node
	meta         *PlateMeta
	name         string
	acquisitions []AcquisitionMeta
	rows         map[string]int
	cols         map[string]int
}

func newPlate(ctx context.Context, cfg nodeConfig, name string, acquisitions []AcquisitionMeta) (*Plate, error) {
	if len(acquisitions) == 0 {
		acquisitions = []AcquisitionMeta{{ID: 0}}
	}
	p := &Plate{
		node:         newNodeState(cfg),
		name:         name,
		acquisitions: acquisitions,
		rows:         make(map[string]int),
		cols:         make(map[string]int),
	}
	if cfg.parseMeta {
		p.parseMeta(ctx)
	}
	return p, nil
}

// parseMeta loads the plate document and rebuilds the row/column index
// registries from the recorded well placements, so indices survive
// reopening regardless of creation order.
func (p *Plate) parseMeta(ctx context.Context) {
	attrs, err := p.group.Attrs(ctx)
	if err == nil {
		var meta *PlateMeta
		meta, err = ParsePlateMeta(attrs)
		if err == nil {
			p.meta = meta
			for _, well := range meta.Wells {
				rowName, colName, ok := strings.Cut(well.Path, "/")
				if !ok {
					continue
				}
				p.rows[rowName] = well.RowIndex
				p.cols[colName] = well.ColumnIndex
			}
			return
		}
	}
	p.warnInvalidMeta(KindPlate, err)
}

// Kind returns KindPlate.
func (p *Plate) Kind() NodeKind { return KindPlate }

// Metadata returns the current in-memory document, or nil for a plate with
// no wells yet.
func (p *Plate) Metadata() *PlateMeta { return p.meta }

// RowIndex returns the integer index registered for a row name.
func (p *Plate) RowIndex(name string) (int, bool) {
	idx, ok := p.rows[name]
	return idx, ok
}

// ColumnIndex returns the integer index registered for a column name.
func (p *Plate) ColumnIndex(name string) (int, bool) {
	idx, ok := p.cols[name]
	return idx, ok
}

// Rows returns the sorted names of all row groups.
func (p *Plate) Rows(ctx context.Context) ([]string, error) {
	return p.group.GroupKeys(ctx)
}

// Row opens a row group by name.
func (p *Plate) Row(ctx context.Context, name string) (*Row, error) {
	group, err := p.group.Group(ctx, name)
	if err != nil {
		return nil, err
	}
	return newRow(ctx, p.childConfig(group, true))
}

// Well opens a well by "<row>/<col>" path.
func (p *Plate) Well(ctx context.Context, path string) (*Well, error) {
	group, err := p.group.Group(ctx, path)
	if err != nil {
		return nil, err
	}
	return newWell(ctx, p.childConfig(group, true))
}

// WellPaths returns the "<row>/<col>" paths of every well group, row-major.
func (p *Plate) WellPaths(ctx context.Context) ([]string, error) {
	rows, err := p.Rows(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, rowName := range rows {
		rowGroup, err := p.group.Group(ctx, rowName)
		if err != nil {
			return nil, err
		}
		wells, err := rowGroup.GroupKeys(ctx)
		if err != nil {
			return nil, err
		}
		for _, wellName := range wells {
			paths = append(paths, rowName+"/"+wellName)
		}
	}
	return paths, nil
}

// WellOption configures CreateWell and CreatePosition.
type WellOption func(*wellConfig)

type wellConfig struct {
	rowIndex    *int
	colIndex    *int
	acquisition int
}

// WithRowIndex forces the integer row index instead of assigning the next
// unused one.
func WithRowIndex(idx int) WellOption {
	return func(c *wellConfig) { c.rowIndex = &idx }
}

// WithColumnIndex forces the integer column index instead of assigning the
// next unused one.
func WithColumnIndex(idx int) WellOption {
	return func(c *wellConfig) { c.colIndex = &idx }
}

// WithAcquisition sets the acquisition index recorded for a new position.
func WithAcquisition(idx int) WellOption {
	return func(c *wellConfig) { c.acquisition = idx }
}

// autoIndex resolves an index for a name: the forced value if supplied, the
// registered value if the name is known, else one past the highest index in
// use (0 when none).
func autoIndex(name string, forced *int, known map[string]int) int {
	if forced != nil {
		return *forced
	}
	if idx, ok := known[name]; ok {
		return idx
	}
	next := 0
	for _, idx := range known {
		if idx >= next {
			next = idx + 1
		}
	}
	return next
}

// normalizePlateName validates a row or column name as a single path
// component.
func normalizePlateName(name string) (string, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("ngff: invalid plate axis name %q", name)
	}
	return name, nil
}

// CreateWell creates a new well group in the plate. The well starts with an
// empty document; well metadata is not written until a position is created.
// The row group is created lazily on the first well of that row, and the
// plate document is flushed before the well is returned.
func (p *Plate) CreateWell(ctx context.Context, rowName, colName string, opts ...WellOption) (*Well, error) {
	cfg := &wellConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	rowName, err := normalizePlateName(rowName)
	if err != nil {
		return nil, err
	}
	colName, err = normalizePlateName(colName)
	if err != nil {
		return nil, err
	}
	rowIndex := autoIndex(rowName, cfg.rowIndex, p.rows)
	colIndex := autoIndex(colName, cfg.colIndex, p.cols)

	var rowGroup *zarr.Group
	_, rowKnown := p.rows[rowName]
	if rowKnown {
		rowGroup, err = p.group.Group(ctx, rowName)
	} else {
		rowGroup, err = p.group.CreateGroup(ctx, rowName, p.overwrite)
	}
	if err != nil {
		return nil, err
	}
	wellGroup, err := rowGroup.CreateGroup(ctx, colName, p.overwrite)
	if err != nil {
		return nil, err
	}

	// structural creation succeeded, now record the placement
	if p.meta == nil {
		p.meta = &PlateMeta{
			Version:      p.version,
			Name:         p.name,
			Acquisitions: p.acquisitions,
		}
	}
	if !rowKnown {
		p.rows[rowName] = rowIndex
		p.meta.Rows = append(p.meta.Rows, PlateAxisMeta{Name: rowName})
	}
	if _, known := p.cols[colName]; !known {
		p.cols[colName] = colIndex
		p.meta.Columns = append(p.meta.Columns, PlateAxisMeta{Name: colName})
	}
	p.meta.Wells = append(p.meta.Wells, WellIndexMeta{
		Path:        rowName + "/" + colName,
		RowIndex:    rowIndex,
		ColumnIndex: colIndex,
	})
	if err := p.DumpMeta(ctx); err != nil {
		return nil, err
	}
	return newWell(ctx, p.childConfig(wellGroup, false))
}

// CreatePosition creates a position group under the given well, creating
// the well first if absent.
func (p *Plate) CreatePosition(ctx context.Context, rowName, colName, posName string, opts ...WellOption) (*Position, error) {
	cfg := &wellConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	rowName, err := normalizePlateName(rowName)
	if err != nil {
		return nil, err
	}
	colName, err = normalizePlateName(colName)
	if err != nil {
		return nil, err
	}
	var well *Well
	if _, e := p.group.Group(ctx, rowName+"/"+colName); e == nil {
		well, err = p.Well(ctx, rowName+"/"+colName)
	} else {
		well, err = p.CreateWell(ctx, rowName, colName, opts...)
	}
	if err != nil {
		return nil, err
	}
	return well.CreatePosition(ctx, posName, cfg.acquisition)
}

// DumpMeta flushes the plate document to the group attributes.
func (p *Plate) DumpMeta(ctx context.Context) error {
	if p.meta == nil {
		return fmt.Errorf("ngff: plate %s has no metadata to dump", p.group.Path())
	}
	return p.group.UpdateAttrs(ctx, map[string]any{plateAttrKey: p.meta})
}

// PositionPaths returns the "<row>/<col>/<pos>" paths of every position.
func (p *Plate) PositionPaths(ctx context.Context) ([]string, error) {
	wells, err := p.WellPaths(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, wellPath := range wells {
		wellGroup, err := p.group.Group(ctx, wellPath)
		if err != nil {
			return nil, err
		}
		positions, err := wellGroup.GroupKeys(ctx)
		if err != nil {
			return nil, err
		}
		for _, posName := range positions {
			paths = append(paths, wellPath+"/"+posName)
		}
	}
	return paths, nil
}
