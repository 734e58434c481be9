package ngff

import (
	"log/slog"

	"github.com/openmicrodata/ngff/zarr"
)

// Node is one level of the dataset hierarchy. Concrete implementations are
// Plate, Row, Well, and Position.
type Node interface {
	// Kind identifies the hierarchy level.
	Kind() NodeKind

	// Group returns the backing store group. Each node owns its handle;
	// child nodes obtain their own on construction.
	Group() *zarr.Group

	// ChannelNames returns the node's copy of the ordered channel list.
	ChannelNames() []string

	// Axes returns the node's copy of the axis metadata.
	Axes() []AxisMeta
}

// node carries the state shared by every hierarchy level. The channel-name
// and axis lists are value copies: mutating one node's lists never affects
// siblings, and cross-node consistency is only achieved through explicit
// operations like Position.AppendChannel.
type node struct {
	group        *zarr.Group
	channelNames []string
	axes         []AxisMeta
	version      string
	overwrite    bool
	logger       *slog.Logger
}

// nodeConfig is the construction state handed from parent to child.
type nodeConfig struct {
	group        *zarr.Group
	parseMeta    bool
	channelNames []string
	axes         []AxisMeta
	version      string
	overwrite    bool
	logger       *slog.Logger
}

func newNodeState(cfg nodeConfig) node {
	axes := cfg.axes
	if axes == nil {
		axes = DefaultAxes()
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.version
	if version == "" {
		version = Version
	}
	return node{
		group:        cfg.group,
		channelNames: append([]string(nil), cfg.channelNames...),
		axes:         append([]AxisMeta(nil), axes...),
		version:      version,
		overwrite:    cfg.overwrite,
		logger:       logger,
	}
}

func (n *node) Group() *zarr.Group { return n.group }

func (n *node) ChannelNames() []string {
	return append([]string(nil), n.channelNames...)
}

func (n *node) Axes() []AxisMeta {
	return append([]AxisMeta(nil), n.axes...)
}

// childConfig produces the construction state for a child node at the given
// group. Channel names and axes are copied, never aliased.
func (n *node) childConfig(group *zarr.Group, parseMeta bool) nodeConfig {
	return nodeConfig{
		group:        group,
		parseMeta:    parseMeta,
		channelNames: append([]string(nil), n.channelNames...),
		axes:         append([]AxisMeta(nil), n.axes...),
		version:      n.version,
		overwrite:    n.overwrite,
		logger:       n.logger,
	}
}

// warnInvalidMeta records a metadata parse failure that is recovered by
// falling back to an empty document. Array data stays readable.
func (n *node) warnInvalidMeta(kind NodeKind, err error) {
	n.logger.Warn("group has no valid metadata for node kind, using empty document",
		"path", n.group.Path(), "kind", kind.String(), "err", err)
}

// findAxis returns the index of the first axis of the given type, or -1.
func findAxis(axes []AxisMeta, axisType string) int {
	for i, ax := range axes {
		if ax.Type == axisType {
			return i
		}
	}
	return -1
}

// padShape left-pads a shape with singleton dimensions to the target rank.
func padShape(shape []int, target int) []int {
	if len(shape) >= target {
		return append([]int(nil), shape...)
	}
	padded := make([]int, target)
	for i := range padded {
		padded[i] = 1
	}
	copy(padded[target-len(shape):], shape)
	return padded
}
