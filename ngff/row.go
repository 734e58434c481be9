package ngff

import "context"

// Row is the group level containing wells. It is purely structural: rows
// carry no metadata document of their own.
type Row struct {
	node
}

func newRow(_ context.Context, cfg nodeConfig) (*Row, error) {
	return &Row{node: newNodeState(cfg)}, nil
}

// Kind returns KindRow.
func (r *Row) Kind() NodeKind { return KindRow }

// Wells returns the sorted names of all wells in the row.
func (r *Row) Wells(ctx context.Context) ([]string, error) {
	return r.group.GroupKeys(ctx)
}

// Well opens a well group by name.
func (r *Row) Well(ctx context.Context, name string) (*Well, error) {
	group, err := r.group.Group(ctx, name)
	if err != nil {
		return nil, err
	}
	return newWell(ctx, r.childConfig(group, true))
}
