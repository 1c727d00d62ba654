package repositorycache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-memocache/cache"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// CachedRepository decorates a base repository with caching functionality.
//
// Every cached read is stored with exactly one cache tag describing what it
// depends on: the record id for GetByID, the identifier family for
// GetByIdentifier and the query family for Get, List and Count. Writes remove
// the affected tags.
type CachedRepository[T any] struct {
	base     repository.Repository[T]
	cache    cache.CacheService
	settings settings

	// idTags holds the id tags of successful GetByID reads, so criteria
	// deletes can drop them. extraTags maps context supplied tags to the keys
	// successfully read under them. Failed reads cache nothing and register
	// nothing. Both grow with the distinct ids, tags and keys read between
	// invalidations, and InvalidateTags or a criteria delete prunes them.
	idTags    *xsync.MapOf[string, struct{}]
	extraTags *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], cacheService cache.CacheService, opts ...Option) *CachedRepository[T] {
	s := newSettings[T](opts)
	return &CachedRepository[T]{
		base:      base,
		cache:     cacheService,
		settings:  s,
		idTags:    xsync.NewMapOf[string, struct{}](),
		extraTags: xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
	}
}

// Namespace returns the prefix of the repository's keys and tags.
func (c *CachedRepository[T]) Namespace() string {
	return c.settings.namespace
}

// QueryTag is the tag of cached Get, List and Count results.
func (c *CachedRepository[T]) QueryTag() string {
	return c.settings.namespace + ":query"
}

// IDTag is the tag of cached GetByID results for id.
func (c *CachedRepository[T]) IDTag(id string) string {
	return c.settings.namespace + ":id:" + id
}

// IdentifierTag is the tag of cached GetByIdentifier results.
func (c *CachedRepository[T]) IdentifierTag() string {
	return c.settings.namespace + ":identifier"
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("Get", criteria)
	return cached(ctx, c, key, c.QueryTag(), func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("GetByID", id, criteria)
	tag := c.IDTag(id)
	record, err := cached(ctx, c, key, tag, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
	if err == nil {
		c.idTags.Store(tag, struct{}{})
	}
	return record, err
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key := c.key("List", criteria)
	res, err := cached(ctx, c, key, c.QueryTag(), func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key := c.key("Count", criteria)
	return cached(ctx, c, key, c.QueryTag(), func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("GetByIdentifier", identifier, criteria)
	return cached(ctx, c, key, c.IdentifierTag(), func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// Create creates a new record. Write operations pass through to base repository
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		// GetOrCreate may have created a new record
		c.invalidateAfterCreate()
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(record, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(record, result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(slices.Concat(records, result)...)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(slices.Concat(records, result)...)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(record, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(record, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(slices.Concat(records, result)...)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(slices.Concat(records, result)...)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateAll()
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll()
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateAll()
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll()
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// InvalidateTags removes every cached read stored under the given tags,
// including tags attached with WithCacheTags. It returns the number of
// entries removed.
func (c *CachedRepository[T]) InvalidateTags(tags ...string) int {
	removed := 0
	for _, tag := range dedupeStrings(tags) {
		removed += c.cache.DeleteByTag(tag)
		c.idTags.Delete(tag)

		if keys, ok := c.extraTags.LoadAndDelete(tag); ok {
			keys.Range(func(key string, _ struct{}) bool {
				if c.cache.Delete(key) {
					removed++
				}
				return true
			})
		}
	}

	if removed > 0 {
		c.settings.logger.Debug("cached reads invalidated",
			slog.String("namespace", c.settings.namespace),
			slog.Any("tags", tags),
			slog.Int("removed", removed),
		)
	}
	return removed
}

// cached runs a read through the cache under key and tag. Once the read
// succeeds, tags found on ctx are recorded for InvalidateTags.
func cached[T, R any](ctx context.Context, c *CachedRepository[T], key, tag string, fetch cache.FetchFn[R]) (R, error) {
	opts := []cache.SetOption{cache.WithTag(tag)}
	if c.settings.hasTTL {
		opts = append(opts, cache.WithTTL(c.settings.ttl))
	}
	result, err := cache.GetOrSet(ctx, c.cache, key, fetch, opts...)
	if err != nil {
		return result, err
	}

	for _, extra := range cacheTagsFromContext(ctx) {
		keys, _ := c.extraTags.LoadOrCompute(extra, func() *xsync.MapOf[string, struct{}] {
			return xsync.NewMapOf[string, struct{}]()
		})
		keys.Store(key, struct{}{})
	}
	return result, nil
}

func (c *CachedRepository[T]) key(method string, args ...any) string {
	return c.settings.namespace + cache.KeySeparator + c.settings.keySerializer.SerializeKey(method, args...)
}

func (c *CachedRepository[T]) invalidateAfterCreate() {
	c.InvalidateTags(c.QueryTag())
}

// invalidateRecords drops the id tags of records along with the identifier
// and query families they may appear in.
func (c *CachedRepository[T]) invalidateRecords(records ...T) {
	tags := []string{c.QueryTag(), c.IdentifierTag()}
	for _, record := range records {
		if id, ok := c.extractID(record); ok {
			tags = append(tags, c.IDTag(id))
		}
	}
	c.InvalidateTags(tags...)
}

// invalidateAll is used after criteria deletes, where the affected records
// are unknown.
func (c *CachedRepository[T]) invalidateAll() {
	tags := []string{c.QueryTag(), c.IdentifierTag()}
	c.idTags.Range(func(tag string, _ struct{}) bool {
		tags = append(tags, tag)
		return true
	})
	c.InvalidateTags(tags...)
}

// extractID returns the record id from the model handlers, falling back to
// an ID field found by reflection.
func (c *CachedRepository[T]) extractID(record T) (string, bool) {
	if handlers := c.base.Handlers(); handlers.GetID != nil {
		if id := handlers.GetID(record); id != uuid.Nil {
			return id.String(), true
		}
	}

	v := reflect.ValueOf(record)
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return "", false
	}

	for _, fieldName := range []string{"ID", "Id"} {
		field := v.FieldByName(fieldName)
		if field.IsValid() && field.CanInterface() {
			if id := fmt.Sprintf("%v", field.Interface()); id != "" {
				return id, true
			}
		}
	}
	return "", false
}
