// internal/segmentation/datasource.go
package segmentation

import "strings"

/*
 * Data source lineage.
 *
 * A DataSource describes where a criterion reads its values from. Sources
 * form a small parent-linked tree: roots (user, installation, event) have
 * no parent; field sources append path parts to their parent; derived
 * sources (last activity date, presence, geo) hang off the installation.
 *
 * Sources are immutable once built and shared freely between contexts.
 */

// SourceKind identifies a DataSource variant.
type SourceKind int

const (
	SourceUser SourceKind = iota
	SourceInstallation
	SourceEvent
	SourceField
	SourceLastActivityDate
	SourcePresenceSinceDate
	SourcePresenceElapsedTime
	SourceGeoLocation
	SourceGeoDate
)

var sourceKindNames = map[SourceKind]string{
	SourceUser:                "user",
	SourceInstallation:        "installation",
	SourceEvent:               "event",
	SourceField:               "field",
	SourceLastActivityDate:    "lastActivityDate",
	SourcePresenceSinceDate:   "presence.sinceDate",
	SourcePresenceElapsedTime: "presence.elapsedTime",
	SourceGeoLocation:         "geo.location",
	SourceGeoDate:             "geo.date",
}

// String returns the grammar name of the kind.
func (k SourceKind) String() string {
	if name, ok := sourceKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// DataSource is one node of the lineage tree.
type DataSource struct {
	Kind    SourceKind
	Parent  *DataSource
	Path    []string // path parts added by this field source
	Present bool     // presence sources only
}

// UserSource returns a new user root.
func UserSource() *DataSource {
	return &DataSource{Kind: SourceUser}
}

// InstallationSource returns a new installation root.
func InstallationSource() *DataSource {
	return &DataSource{Kind: SourceInstallation}
}

// EventSource returns a new event root.
func EventSource() *DataSource {
	return &DataSource{Kind: SourceEvent}
}

// FieldSource returns a source reading path below parent.
func FieldSource(parent *DataSource, path []string) *DataSource {
	return &DataSource{Kind: SourceField, Parent: parent, Path: path}
}

// derivedSource returns a non-field source hanging off parent.
func derivedSource(kind SourceKind, parent *DataSource, present bool) *DataSource {
	return &DataSource{Kind: kind, Parent: parent, Present: present}
}

// IsRoot reports whether the source is a user, installation or event root.
func (d *DataSource) IsRoot() bool {
	return d.Parent == nil
}

// Root walks up the parent chain to the root source.
func (d *DataSource) Root() *DataSource {
	curr := d
	for curr.Parent != nil {
		curr = curr.Parent
	}
	return curr
}

// FullPath returns the path parts of this field and all its field ancestors.
// Returns nil for non-field sources.
func (d *DataSource) FullPath() []string {
	if d.Kind != SourceField {
		return nil
	}
	var chain []*DataSource
	for curr := d; curr != nil && curr.Kind == SourceField; curr = curr.Parent {
		chain = append(chain, curr)
	}
	var parts []string
	for i := len(chain) - 1; i >= 0; i-- {
		parts = append(parts, chain[i].Path...)
	}
	return parts
}

// String renders the lineage, e.g. "installation.custom.string_foo".
func (d *DataSource) String() string {
	if d.Kind == SourceField {
		prefix := ""
		if d.Parent != nil {
			prefix = d.Parent.String()
		}
		return prefix + "." + strings.Join(d.Path, ".")
	}
	if d.Kind == SourcePresenceSinceDate || d.Kind == SourcePresenceElapsedTime {
		if d.Present {
			return d.Kind.String() + "(present)"
		}
		return d.Kind.String() + "(absent)"
	}
	return d.Kind.String()
}
