// Package permission builds Lake Formation grant and revoke requests from
// caller-supplied identifiers.
package permission

import (
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
)

// Kind names the resource a permission attaches to.
type Kind string

const (
	// KindTable is a whole table (all columns).
	KindTable Kind = "table"
	// KindTableColumns is a subset of columns of one table.
	KindTableColumns Kind = "table_columns"
	// KindDatabase is a Glue database.
	KindDatabase Kind = "database"
	// KindLFTag is an LF-tag key with one or more values.
	KindLFTag Kind = "lf_tag"
)

// Kinds returns every resource kind in catalog order.
func Kinds() []Kind {
	return []Kind{KindTable, KindTableColumns, KindDatabase, KindLFTag}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// Resource describes what a permission protects. Exactly the fields of its
// kind are populated; values are never mutated after construction.
type Resource struct {
	kind      Kind
	database  string
	table     string
	columns   []string
	tagKey    string
	tagValues []string
}

func tableResource(database, table string) Resource {
	return Resource{kind: KindTable, database: database, table: table}
}

func tableColumnsResource(database, table string, columns []string) Resource {
	return Resource{kind: KindTableColumns, database: database, table: table, columns: slices.Clone(columns)}
}

func databaseResource(name string) Resource {
	return Resource{kind: KindDatabase, database: name}
}

func tagResource(key string, values []string) Resource {
	return Resource{kind: KindLFTag, tagKey: key, tagValues: slices.Clone(values)}
}

// Kind returns the resource kind.
func (r Resource) Kind() Kind { return r.kind }

// Database returns the database name for table, column and database resources.
func (r Resource) Database() string { return r.database }

// Table returns the table name for table and column resources.
func (r Resource) Table() string { return r.table }

// Columns returns a copy of the column names.
func (r Resource) Columns() []string { return slices.Clone(r.columns) }

// TagKey returns the LF-tag key.
func (r Resource) TagKey() string { return r.tagKey }

// TagValues returns a copy of the LF-tag values.
func (r Resource) TagValues() []string { return slices.Clone(r.tagValues) }

// WireShape encodes the resource the way the Lake Formation API expects it.
// catalogID is optional; an empty value lets the service use the caller's account.
func (r Resource) WireShape(catalogID string) *types.Resource {
	var catalog *string
	if catalogID != "" {
		catalog = aws.String(catalogID)
	}

	switch r.kind {
	case KindTable:
		return &types.Resource{
			Table: &types.TableResource{
				CatalogId:    catalog,
				DatabaseName: aws.String(r.database),
				Name:         aws.String(r.table),
			},
		}
	case KindTableColumns:
		return &types.Resource{
			TableWithColumns: &types.TableWithColumnsResource{
				CatalogId:    catalog,
				DatabaseName: aws.String(r.database),
				Name:         aws.String(r.table),
				ColumnNames:  slices.Clone(r.columns),
			},
		}
	case KindDatabase:
		return &types.Resource{
			Database: &types.DatabaseResource{
				CatalogId: catalog,
				Name:      aws.String(r.database),
			},
		}
	case KindLFTag:
		return &types.Resource{
			LFTag: &types.LFTagKeyResource{
				CatalogId: catalog,
				TagKey:    aws.String(r.tagKey),
				TagValues: slices.Clone(r.tagValues),
			},
		}
	default:
		return nil
	}
}

// Targets returns a flat list of identifiers for audit summaries.
func (r Resource) Targets() []string {
	switch r.kind {
	case KindTable:
		return []string{r.database + "." + r.table}
	case KindTableColumns:
		targets := make([]string, 0, len(r.columns))
		for _, column := range r.columns {
			targets = append(targets, r.database+"."+r.table+"."+column)
		}
		return targets
	case KindDatabase:
		return []string{r.database}
	case KindLFTag:
		targets := make([]string, 0, len(r.tagValues))
		for _, value := range r.tagValues {
			targets = append(targets, r.tagKey+"="+value)
		}
		return targets
	default:
		return nil
	}
}

// String renders a short human label, e.g. "table sales.orders".
func (r Resource) String() string {
	switch r.kind {
	case KindTable:
		return fmt.Sprintf("table %s.%s", r.database, r.table)
	case KindTableColumns:
		return fmt.Sprintf("columns %v of table %s.%s", r.columns, r.database, r.table)
	case KindDatabase:
		return fmt.Sprintf("database %s", r.database)
	case KindLFTag:
		return fmt.Sprintf("LF-tag %s=%v", r.tagKey, r.tagValues)
	default:
		return "unknown resource"
	}
}
