// Package introspect reads the PostgreSQL catalogs of one schema into
// a normalized Model. Two runs over the same database snapshot produce
// deep-equal Models: tables and enums are sorted by name, columns keep
// catalog ordinals, and key/index column lists keep their defined
// order.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/dialect"
	"github.com/syssam/fabrica/schema"
)

// Inspector reads one schema's catalog into a Model. It does not own
// the database handle; the caller opens and closes it.
type Inspector struct {
	db  dialect.ExecQuerier
	log logrus.FieldLogger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithLogger sets the logger; the default discards.
func WithLogger(log logrus.FieldLogger) Option {
	return func(i *Inspector) {
		if log != nil {
			i.log = log
		}
	}
}

// New returns an Inspector reading through db.
func New(db dialect.ExecQuerier, opts ...Option) *Inspector {
	discard := logrus.New()
	discard.SetLevel(logrus.PanicLevel)
	i := &Inspector{db: db, log: discard}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect builds the Model for schemaName. The table list is fetched
// first; the five detail queries then run concurrently and merge in
// sorted order, so completion order never affects the result. Any
// failure aborts the whole run with an IntrospectionError.
func (i *Inspector) Inspect(ctx context.Context, schemaName string) (*schema.Model, error) {
	if err := i.checkSchema(ctx, schemaName); err != nil {
		return nil, err
	}
	names, err := i.tableNames(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	i.log.WithFields(logrus.Fields{"schema": schemaName, "tables": len(names)}).Debug("introspecting")

	var (
		columns map[string][]schema.Column
		pks     map[string][]string
		uniques map[string][]schema.Index
		fks     map[string][]schema.ForeignKey
		enums   []*schema.Enum
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		columns, err = i.fetchColumns(ctx, schemaName)
		return err
	})
	eg.Go(func() (err error) {
		pks, err = i.fetchPrimaryKeys(ctx, schemaName)
		return err
	})
	eg.Go(func() (err error) {
		uniques, err = i.fetchUniqueIndexes(ctx, schemaName)
		return err
	})
	eg.Go(func() (err error) {
		fks, err = i.fetchForeignKeys(ctx, schemaName)
		return err
	})
	eg.Go(func() (err error) {
		enums, err = i.fetchEnums(ctx, schemaName)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	m := &schema.Model{Schema: schemaName, Enums: enums}
	for _, name := range names {
		m.Tables = append(m.Tables, &schema.Table{
			Name:        name,
			Columns:     columns[name],
			PrimaryKey:  pks[name],
			Uniques:     uniques[name],
			ForeignKeys: fks[name],
		})
	}
	m.Sort()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (i *Inspector) checkSchema(ctx context.Context, schemaName string) error {
	rows, err := i.db.QueryContext(ctx, querySchemaExists, schemaName)
	if err != nil {
		return fabrica.NewIntrospectionError(schemaName, "connect", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return fabrica.NewIntrospectionError(schemaName, "schema",
			fmt.Errorf("schema %q does not exist", schemaName))
	}
	return rows.Err()
}

func (i *Inspector) tableNames(ctx context.Context, schemaName string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, queryTables, schemaName)
	if err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "tables", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fabrica.NewIntrospectionError(schemaName, "tables", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "tables", err)
	}
	sort.Strings(names)
	return names, nil
}

func (i *Inspector) fetchColumns(ctx context.Context, schemaName string) (map[string][]schema.Column, error) {
	rows, err := i.db.QueryContext(ctx, queryColumns, schemaName)
	if err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "columns", err)
	}
	defer rows.Close()
	out := make(map[string][]schema.Column)
	for rows.Next() {
		var (
			table, name, format, typName, typType, typCategory, elemName string
			position                                                     int
			notNull, hasDefault                                          bool
		)
		if err := rows.Scan(&table, &name, &position, &format, &typName, &typType, &typCategory, &elemName, &notNull, &hasDefault); err != nil {
			return nil, fabrica.NewIntrospectionError(schemaName, "columns", err)
		}
		c := schema.Column{
			Name:       name,
			DataType:   format,
			Nullable:   !notNull,
			HasDefault: hasDefault,
			Position:   position,
		}
		mapColumnType(&c, format, typName, typType, typCategory, elemName)
		out[table] = append(out[table], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "columns", err)
	}
	return out, nil
}

func (i *Inspector) fetchPrimaryKeys(ctx context.Context, schemaName string) (map[string][]string, error) {
	rows, err := i.db.QueryContext(ctx, queryPrimaryKeys, schemaName)
	if err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "primary keys", err)
	}
	defer rows.Close()
	out := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fabrica.NewIntrospectionError(schemaName, "primary keys", err)
		}
		out[table] = append(out[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "primary keys", err)
	}
	return out, nil
}

func (i *Inspector) fetchUniqueIndexes(ctx context.Context, schemaName string) (map[string][]schema.Index, error) {
	rows, err := i.db.QueryContext(ctx, queryUniqueIndexes, schemaName)
	if err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "unique indexes", err)
	}
	defer rows.Close()
	out := make(map[string][]schema.Index)
	for rows.Next() {
		var table, index, column string
		if err := rows.Scan(&table, &index, &column); err != nil {
			return nil, fabrica.NewIntrospectionError(schemaName, "unique indexes", err)
		}
		idxs := out[table]
		if n := len(idxs); n > 0 && idxs[n-1].Name == index {
			idxs[n-1].Columns = append(idxs[n-1].Columns, column)
		} else {
			idxs = append(idxs, schema.Index{Name: index, Columns: []string{column}})
		}
		out[table] = idxs
	}
	if err := rows.Err(); err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "unique indexes", err)
	}
	return out, nil
}

var fkActions = map[string]string{
	"a": "NO ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET NULL",
	"d": "SET DEFAULT",
}

func (i *Inspector) fetchForeignKeys(ctx context.Context, schemaName string) (map[string][]schema.ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, queryForeignKeys, schemaName)
	if err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "foreign keys", err)
	}
	defer rows.Close()
	out := make(map[string][]schema.ForeignKey)
	for rows.Next() {
		var name, table, column, refTable, refColumn, delType, updType string
		if err := rows.Scan(&name, &table, &column, &refTable, &refColumn, &delType, &updType); err != nil {
			return nil, fabrica.NewIntrospectionError(schemaName, "foreign keys", err)
		}
		fks := out[table]
		if n := len(fks); n > 0 && fks[n-1].Name == name {
			fks[n-1].Columns = append(fks[n-1].Columns, column)
			fks[n-1].RefColumns = append(fks[n-1].RefColumns, refColumn)
		} else {
			fks = append(fks, schema.ForeignKey{
				Name:       name,
				Columns:    []string{column},
				RefTable:   refTable,
				RefColumns: []string{refColumn},
				OnDelete:   fkActions[delType],
				OnUpdate:   fkActions[updType],
			})
		}
		out[table] = fks
	}
	if err := rows.Err(); err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "foreign keys", err)
	}
	return out, nil
}

func (i *Inspector) fetchEnums(ctx context.Context, schemaName string) ([]*schema.Enum, error) {
	rows, err := i.db.QueryContext(ctx, queryEnums, schemaName)
	if err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "enums", err)
	}
	defer rows.Close()
	var enums []*schema.Enum
	for rows.Next() {
		var name, label string
		if err := rows.Scan(&name, &label); err != nil {
			return nil, fabrica.NewIntrospectionError(schemaName, "enums", err)
		}
		if n := len(enums); n > 0 && enums[n-1].Name == name {
			enums[n-1].Labels = append(enums[n-1].Labels, label)
		} else {
			enums = append(enums, &schema.Enum{Name: name, Labels: []string{label}})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fabrica.NewIntrospectionError(schemaName, "enums", err)
	}
	return enums, nil
}

var vectorDimRe = regexp.MustCompile(`^vector\((\d+)\)$`)

// mapColumnType collapses a catalog type into the semantic Type the
// filter compiler and emitter work with.
func mapColumnType(c *schema.Column, format, typName, typType, typCategory, elemName string) {
	switch {
	case typType == "e":
		c.Type = schema.TypeEnum
		c.EnumType = typName
		return
	case typName == "vector":
		c.Type = schema.TypeVector
		if m := vectorDimRe.FindStringSubmatch(format); m != nil {
			c.VectorDim, _ = strconv.Atoi(m[1])
		}
		return
	case typCategory == "A":
		c.Type = schema.TypeArray
		c.Elem = baseType(strings.TrimPrefix(elemName, "_"))
		return
	}
	c.Type = baseType(typName)
}

func baseType(typName string) schema.Type {
	switch typName {
	case "uuid":
		return schema.TypeUUID
	case "text", "varchar", "bpchar", "char", "name", "citext":
		return schema.TypeText
	case "int2", "int4", "int8", "smallint", "integer", "bigint", "smallserial", "serial", "bigserial":
		return schema.TypeInt
	case "float4", "float8", "real":
		return schema.TypeFloat
	case "numeric", "money":
		return schema.TypeNumeric
	case "bool":
		return schema.TypeBool
	case "timestamp", "timestamptz":
		return schema.TypeTimestamp
	case "date":
		return schema.TypeDate
	case "json", "jsonb":
		return schema.TypeJSON
	case "bytea":
		return schema.TypeBytes
	default:
		return schema.TypeUnknown
	}
}

// Ping verifies the database is reachable, surfacing failures with the
// DSN redacted so credentials never reach logs or error output.
func Ping(ctx context.Context, db *sql.DB, dsn string) error {
	if err := db.PingContext(ctx); err != nil {
		return fabrica.NewIntrospectionError("", "connect",
			&connectError{dsn: RedactDSN(dsn), err: err})
	}
	return nil
}

type connectError struct {
	dsn string
	err error
}

func (e *connectError) Error() string {
	return "connecting to " + e.dsn + ": " + e.err.Error()
}

func (e *connectError) Unwrap() error { return e.err }

// RedactDSN masks the password in a connection string for error
// output. Both URL and key=value DSN forms are handled.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	return passwordKVRe.ReplaceAllString(dsn, "password=xxxxx")
}

var passwordKVRe = regexp.MustCompile(`password=\S+`)
