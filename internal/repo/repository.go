// Package repo implements the generic data-access layer. A Repository is
// bound to one entity type and one session for its lifetime; the session's
// execution mode decides which half of the paired operation set is legal.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"ghostid.org/internal/entity"
	"ghostid.org/internal/obs"
	"ghostid.org/internal/store"
)

// Conditions maps field names to match values. A nil value matches rows where
// the field is unset, a slice value matches membership, anything else matches
// equality. Names not registered for the entity are skipped.
type Conditions map[string]any

// ListOptions shapes a filtered, ordered, paginated list read.
type ListOptions struct {
	Filters Conditions
	Skip    int
	Limit   int
	// OrderBy is a field name, "-" prefixed for descending order.
	OrderBy string
}

const defaultLimit = 100

// Repository offers CRUD and filtered queries over one entity type. Blocking
// operations require a blocking session, Context operations a non-blocking
// one; the pairing is verified on every call.
type Repository[T entity.Record] struct {
	sess *store.Session
	desc *entity.Descriptor[T]

	softDelete bool
	audited    bool
}

// New binds a repository to a session and a field registry. Capability
// support is probed once here, not per call.
func New[T entity.Record](sess *store.Session, desc *entity.Descriptor[T]) *Repository[T] {
	probe := desc.New()
	_, softDelete := any(probe).(entity.SoftDeletable)
	_, audited := any(probe).(entity.Audited)
	return &Repository[T]{
		sess:       sess,
		desc:       desc,
		softDelete: softDelete,
		audited:    audited,
	}
}

// Session returns the bound session.
func (r *Repository[T]) Session() *store.Session { return r.sess }

func (r *Repository[T]) blocking() error {
	if r.sess.Mode() != store.ModeBlocking {
		return store.ErrModeMismatch
	}
	return nil
}

func (r *Repository[T]) nonBlocking() error {
	if r.sess.Mode() != store.ModeNonBlocking {
		return store.ErrModeMismatch
	}
	return nil
}

// Get loads an entity by id. A missing id is not an error; found is false.
func (r *Repository[T]) Get(id string) (T, bool, error) {
	if err := r.blocking(); err != nil {
		var zero T
		return zero, false, err
	}
	return r.get(context.Background(), id)
}

// GetContext is the non-blocking form of Get.
func (r *Repository[T]) GetContext(ctx context.Context, id string) (T, bool, error) {
	if err := r.nonBlocking(); err != nil {
		var zero T
		return zero, false, err
	}
	return r.get(ctx, id)
}

// GetBy loads the single entity matching all conditions, or reports absence.
func (r *Repository[T]) GetBy(conds Conditions) (T, bool, error) {
	if err := r.blocking(); err != nil {
		var zero T
		return zero, false, err
	}
	return r.getBy(context.Background(), conds)
}

// GetByContext is the non-blocking form of GetBy.
func (r *Repository[T]) GetByContext(ctx context.Context, conds Conditions) (T, bool, error) {
	if err := r.nonBlocking(); err != nil {
		var zero T
		return zero, false, err
	}
	return r.getBy(ctx, conds)
}

// GetAll lists entities matching the filters. Soft-deleted rows are excluded
// for soft-deletable entity types regardless of the filters given.
func (r *Repository[T]) GetAll(opts ListOptions) ([]T, error) {
	if err := r.blocking(); err != nil {
		return nil, err
	}
	return r.getAll(context.Background(), opts)
}

// GetAllContext is the non-blocking form of GetAll.
func (r *Repository[T]) GetAllContext(ctx context.Context, opts ListOptions) ([]T, error) {
	if err := r.nonBlocking(); err != nil {
		return nil, err
	}
	return r.getAll(ctx, opts)
}

// Count counts entities matching the filters with the same soft-delete
// exclusion as GetAll.
func (r *Repository[T]) Count(filters Conditions) (int64, error) {
	if err := r.blocking(); err != nil {
		return 0, err
	}
	return r.count(context.Background(), filters)
}

// CountContext is the non-blocking form of Count.
func (r *Repository[T]) CountContext(ctx context.Context, filters Conditions) (int64, error) {
	if err := r.nonBlocking(); err != nil {
		return 0, err
	}
	return r.count(ctx, filters)
}

// Create constructs and persists a new entity from a field map and returns it
// with generated identity and timestamps populated. The insert is flushed so
// the identity is usable before the surrounding transaction commits.
func (r *Repository[T]) Create(fields Conditions) (T, error) {
	if err := r.blocking(); err != nil {
		var zero T
		return zero, err
	}
	return r.create(context.Background(), fields)
}

// CreateContext is the non-blocking form of Create.
func (r *Repository[T]) CreateContext(ctx context.Context, fields Conditions) (T, error) {
	if err := r.nonBlocking(); err != nil {
		var zero T
		return zero, err
	}
	return r.create(ctx, fields)
}

// Update loads an entity, applies the given fields and persists the result.
// Names the entity does not declare are skipped. Audited entities get their
// version incremented by exactly one per call.
func (r *Repository[T]) Update(id string, fields Conditions) (T, bool, error) {
	if err := r.blocking(); err != nil {
		var zero T
		return zero, false, err
	}
	return r.update(context.Background(), id, fields)
}

// UpdateContext is the non-blocking form of Update.
func (r *Repository[T]) UpdateContext(ctx context.Context, id string, fields Conditions) (T, bool, error) {
	if err := r.nonBlocking(); err != nil {
		var zero T
		return zero, false, err
	}
	return r.update(ctx, id, fields)
}

// Delete removes an entity. With soft true and a soft-deletable entity type
// the row is marked deleted, otherwise it is removed physically. The return
// reports whether a matching row existed.
func (r *Repository[T]) Delete(id string, soft bool) (bool, error) {
	if err := r.blocking(); err != nil {
		return false, err
	}
	return r.delete(context.Background(), id, soft)
}

// DeleteContext is the non-blocking form of Delete.
func (r *Repository[T]) DeleteContext(ctx context.Context, id string, soft bool) (bool, error) {
	if err := r.nonBlocking(); err != nil {
		return false, err
	}
	return r.delete(ctx, id, soft)
}

// BulkCreate persists many entities in one flush and returns them with
// identities populated.
func (r *Repository[T]) BulkCreate(fieldMaps []Conditions) ([]T, error) {
	if err := r.blocking(); err != nil {
		return nil, err
	}
	return r.bulkCreate(context.Background(), fieldMaps)
}

// BulkCreateContext is the non-blocking form of BulkCreate.
func (r *Repository[T]) BulkCreateContext(ctx context.Context, fieldMaps []Conditions) ([]T, error) {
	if err := r.nonBlocking(); err != nil {
		return nil, err
	}
	return r.bulkCreate(ctx, fieldMaps)
}

func (r *Repository[T]) get(ctx context.Context, id string) (T, bool, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "get", r.sess.Mode().String(), time.Now())
	rec := r.desc.New()
	query := fmt.Sprintf("select %s from %s where id = $1",
		strings.Join(r.desc.Columns, ", "), r.desc.TableName)
	err := r.sess.ScanRow(ctx, query, []any{id}, r.desc.ScanDest(rec)...)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return rec, true, nil
}

func (r *Repository[T]) getBy(ctx context.Context, conds Conditions) (T, bool, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "get_by", r.sess.Mode().String(), time.Now())
	where, args := r.buildWhere(conds, false)
	rec := r.desc.New()
	query := fmt.Sprintf("select %s from %s%s limit 1",
		strings.Join(r.desc.Columns, ", "), r.desc.TableName, where)
	err := r.sess.ScanRow(ctx, query, args, r.desc.ScanDest(rec)...)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return rec, true, nil
}

func (r *Repository[T]) getAll(ctx context.Context, opts ListOptions) ([]T, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "get_all", r.sess.Mode().String(), time.Now())
	where, args := r.buildWhere(opts.Filters, true)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}
	query := fmt.Sprintf("select %s from %s%s%s limit %d offset %d",
		strings.Join(r.desc.Columns, ", "), r.desc.TableName,
		where, r.orderClause(opts.OrderBy), limit, skip)

	rows, err := r.sess.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec := r.desc.New()
		if err := rows.Scan(r.desc.ScanDest(rec)...); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository[T]) count(ctx context.Context, filters Conditions) (int64, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "count", r.sess.Mode().String(), time.Now())
	where, args := r.buildWhere(filters, true)
	query := fmt.Sprintf("select count(*) from %s%s", r.desc.TableName, where)
	return r.sess.CountRows(ctx, query, args...)
}

func (r *Repository[T]) create(ctx context.Context, fields Conditions) (T, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "create", r.sess.Mode().String(), time.Now())
	rec := r.desc.New()
	rec.InitDefaults()
	if err := r.applyFields(rec, fields); err != nil {
		var zero T
		return zero, err
	}
	r.enqueueInsert(rec)
	if err := r.sess.Flush(ctx); err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

func (r *Repository[T]) update(ctx context.Context, id string, fields Conditions) (T, bool, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "update", r.sess.Mode().String(), time.Now())
	rec, found, err := r.get(ctx, id)
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	if err := r.applyFields(rec, fields); err != nil {
		var zero T
		return zero, false, err
	}
	rec.Touch()
	if au, ok := any(rec).(entity.Audited); ok {
		au.BumpVersion()
	}
	r.enqueueUpdate(rec, id)
	if err := r.sess.Flush(ctx); err != nil {
		var zero T
		return zero, false, err
	}
	return rec, true, nil
}

func (r *Repository[T]) delete(ctx context.Context, id string, soft bool) (bool, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "delete", r.sess.Mode().String(), time.Now())
	if soft && r.softDelete {
		rec, found, err := r.get(ctx, id)
		if err != nil || !found {
			return false, err
		}
		any(rec).(entity.SoftDeletable).MarkDeleted()
		rec.Touch()
		r.enqueueUpdate(rec, id)
		return true, r.sess.Flush(ctx)
	}
	res, err := r.sess.Exec(ctx, fmt.Sprintf("delete from %s where id = $1", r.desc.TableName), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository[T]) bulkCreate(ctx context.Context, fieldMaps []Conditions) ([]T, error) {
	defer obs.ObserveRepoOp(r.desc.TableName, "bulk_create", r.sess.Mode().String(), time.Now())
	out := make([]T, 0, len(fieldMaps))
	for _, fields := range fieldMaps {
		rec := r.desc.New()
		rec.InitDefaults()
		if err := r.applyFields(rec, fields); err != nil {
			return nil, err
		}
		r.enqueueInsert(rec)
		out = append(out, rec)
	}
	if err := r.sess.Flush(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// applyFields assigns each registered field from the map. Unknown names are
// skipped; the identity column is never assignable through a field map.
func (r *Repository[T]) applyFields(rec T, fields Conditions) error {
	for _, name := range sortedKeys(fields) {
		if name == "id" {
			continue
		}
		field, ok := r.desc.Fields[name]
		if !ok {
			continue
		}
		if err := field.Assign(rec, fields[name]); err != nil {
			return fmt.Errorf("assign %s.%s: %w", r.desc.TableName, name, err)
		}
	}
	return nil
}

func (r *Repository[T]) enqueueInsert(rec T) {
	cols := r.desc.Columns
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = r.desc.Fields[col].Value(rec)
	}
	query := fmt.Sprintf("insert into %s (%s) values (%s) returning id, created_at, updated_at",
		r.desc.TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	r.sess.Enqueue(store.Change{Query: query, Args: args, Dest: r.desc.KeyDest(rec)})
}

func (r *Repository[T]) enqueueUpdate(rec T, id string) {
	sets := make([]string, 0, len(r.desc.Columns))
	args := make([]any, 0, len(r.desc.Columns)+1)
	n := 1
	for _, col := range r.desc.Columns {
		if col == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, r.desc.Fields[col].Value(rec))
		n++
	}
	args = append(args, id)
	query := fmt.Sprintf("update %s set %s where id = $%d",
		r.desc.TableName, strings.Join(sets, ", "), n)
	r.sess.Enqueue(store.Change{Query: query, Args: args})
}

// buildWhere renders the conditions into a where clause with positional
// arguments. Keys are processed in sorted order so the generated SQL is
// deterministic. With excludeDeleted set and a soft-deletable entity type an
// is_deleted = false clause is always appended; a caller-supplied is_deleted
// condition is kept and ANDed with it, so asking for deleted rows matches
// nothing rather than everything.
func (r *Repository[T]) buildWhere(conds Conditions, excludeDeleted bool) (string, []any) {
	forceNotDeleted := excludeDeleted && r.softDelete

	var clauses []string
	var args []any
	for _, name := range sortedKeys(conds) {
		if !r.desc.Has(name) {
			continue
		}
		value := conds[name]
		if value == nil {
			clauses = append(clauses, name+" is null")
			continue
		}
		if items, ok := sliceValues(value); ok {
			if len(items) == 0 {
				clauses = append(clauses, "false")
				continue
			}
			placeholders := make([]string, len(items))
			for i, item := range items {
				placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
				args = append(args, item)
			}
			clauses = append(clauses, fmt.Sprintf("%s in (%s)", name, strings.Join(placeholders, ", ")))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", name, len(args)+1))
		args = append(args, value)
	}
	if forceNotDeleted {
		clauses = append(clauses, "is_deleted = false")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " where " + strings.Join(clauses, " and "), args
}

// orderClause renders the order-by field, honoring a "-" descending prefix.
// An unregistered field name yields no ordering.
func (r *Repository[T]) orderClause(orderBy string) string {
	if orderBy == "" {
		return ""
	}
	dir := "asc"
	name := orderBy
	if strings.HasPrefix(orderBy, "-") {
		dir = "desc"
		name = orderBy[1:]
	}
	if !r.desc.Has(name) {
		return ""
	}
	return fmt.Sprintf(" order by %s %s", name, dir)
}

func sortedKeys(m Conditions) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sliceValues unpacks slice and array condition values for in-set matching.
// Byte slices and strings are scalar values, not sets.
func sliceValues(v any) ([]any, bool) {
	if _, isBytes := v.([]byte); isBytes {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
