package postgres

import (
	"context"
	"errors"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/typemap"
)

// unknownOID is the pseudo type of parameters the server could not infer
const unknownOID = 705

const typeNameQuery = `SELECT oid, typname FROM pg_catalog.pg_type WHERE oid = ANY($1::oid[])`

const notNullQuery = `SELECT c.relid, c.attnum, a.attnotnull
FROM unnest($1::oid[], $2::int2[]) AS c(relid, attnum)
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.relid AND a.attnum = c.attnum`

type attribute struct {
	relid  uint32
	attnum uint16
}

// Describe prepares query as the unnamed statement and reports its parameters and columns
func Describe(ctx context.Context, conn *pgx.Conn, query string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	sd, err := conn.PgConn().Prepare(ctx, "", query, nil)
	if err != nil {
		return nil, describeError(query, err)
	}

	names, err := typeNames(ctx, conn, statementOIDs(sd))
	if err != nil {
		return nil, describeError(query, err)
	}

	desc := buildDescription(sd, names, settings)

	if settings.InferPostgresNullability() {
		notNull, err := lookupNotNull(ctx, conn, sd.Fields)
		if err != nil {
			return nil, describeError(query, err)
		}

		applyNullability(sd.Fields, desc.Columns, notNull)
	}

	return desc, nil
}

func statementOIDs(sd *pgconn.StatementDescription) []uint32 {
	oids := make([]uint32, 0, len(sd.ParamOIDs)+len(sd.Fields))
	oids = append(oids, sd.ParamOIDs...)

	for _, f := range sd.Fields {
		oids = append(oids, f.DataTypeOID)
	}

	slices.Sort(oids)

	return slices.Compact(oids)
}

// typeNames resolves type OIDs to names, asking pg_type for types pgx does not know (enums, domains, extensions)
func typeNames(ctx context.Context, conn *pgx.Conn, oids []uint32) (map[uint32]string, error) {
	names := make(map[uint32]string, len(oids))

	var missing []uint32

	for _, oid := range oids {
		if oid == 0 || oid == unknownOID {
			continue
		}

		if t, ok := conn.TypeMap().TypeForOID(oid); ok {
			names[oid] = t.Name
		} else {
			missing = append(missing, oid)
		}
	}

	if len(missing) == 0 {
		return names, nil
	}

	var (
		oid  uint32
		name string
	)

	rows, _ := conn.Query(ctx, typeNameQuery, missing)

	_, err := pgx.ForEachRow(rows, []any{&oid, &name}, func() error {
		names[oid] = name
		return nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

func lookupNotNull(ctx context.Context, conn *pgx.Conn, fields []pgconn.FieldDescription) (map[attribute]bool, error) {
	var (
		relids  []uint32
		attnums []int16
	)

	for _, f := range fields {
		if f.TableOID == 0 || f.TableAttributeNumber == 0 {
			continue
		}

		relids = append(relids, f.TableOID)
		attnums = append(attnums, int16(f.TableAttributeNumber))
	}

	notNull := make(map[attribute]bool, len(relids))
	if len(relids) == 0 {
		return notNull, nil
	}

	var (
		relid   uint32
		attnum  int16
		notnull bool
	)

	rows, _ := conn.Query(ctx, notNullQuery, relids, attnums)

	_, err := pgx.ForEachRow(rows, []any{&relid, &attnum, &notnull}, func() error {
		notNull[attribute{relid: relid, attnum: uint16(attnum)}] = notnull
		return nil
	})
	if err != nil {
		return nil, err
	}

	return notNull, nil
}

func buildDescription(sd *pgconn.StatementDescription, names map[uint32]string, settings *sqlshape.DriverSettings) *sqlshape.Description {
	mapper := typemap.For(sqlshape.DialectPostgres)

	desc := &sqlshape.Description{
		Dialect: sqlshape.DialectPostgres,
		Params:  make([]sqlshape.ParameterDescriptor, len(sd.ParamOIDs)),
		Columns: make([]sqlshape.ColumnDescriptor, len(sd.Fields)),
	}

	for i, oid := range sd.ParamOIDs {
		var info sqlshape.TypeInfo

		if name, ok := names[oid]; ok {
			info = mapper.TypeInfo(name)
			info.OID = oid
		} else {
			info = mapper.TypeInfo(settings.PostgresParameterType())
		}

		desc.Params[i] = sqlshape.ParameterDescriptor{
			Position: i + 1,
			Type:     info,
			Nullable: sqlshape.NullabilityUnknown,
		}
	}

	for i, f := range sd.Fields {
		name, ok := names[f.DataTypeOID]
		if !ok {
			name = "unknown"
		}

		info := mapper.TypeInfo(name)
		info.OID = f.DataTypeOID

		desc.Columns[i] = sqlshape.ColumnDescriptor{
			Name:     f.Name,
			Type:     info,
			Nullable: sqlshape.NullabilityUnknown,
		}
	}

	return desc
}

// applyNullability marks table columns from pg_attribute. The flag describes the
// table, so a column on the nullable side of an outer join is still reported not null.
func applyNullability(fields []pgconn.FieldDescription, columns []sqlshape.ColumnDescriptor, notNull map[attribute]bool) {
	for i, f := range fields {
		attnotnull, ok := notNull[attribute{relid: f.TableOID, attnum: f.TableAttributeNumber}]
		if !ok {
			continue
		}

		if attnotnull {
			columns[i].Nullable = sqlshape.NotNull
		} else {
			columns[i].Nullable = sqlshape.Nullable
		}
	}
}

func describeError(query string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	derr := &sqlshape.DescribeError{
		Dialect: sqlshape.DialectPostgres,
		Query:   query,
		Message: err.Error(),
		Err:     err,
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		derr.Code = pgErr.Code
		derr.Message = pgErr.Message
		derr.Position = int(pgErr.Position)

		if pgErr.Hint != "" {
			derr.Message += " (hint: " + pgErr.Hint + ")"
		}
	}

	return derr
}
