package database

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/normalize"
)

const catalogColumns = `ci.id, ci.kind, ci.name, ci.normalized_name, ci.compact_name,
	ci.calories_per_100g, ci.protein_per_100g, ci.carbs_per_100g, ci.fat_per_100g,
	ci.serving_grams, ci.measures, ci.met_light, ci.met_moderate, ci.met_vigorous,
	ci.default_minutes, ci.usage_count, ci.last_used_at, ci.created_at, ci.updated_at`

// UpsertCatalogItem inserts or refreshes a catalog item keyed by kind and
// normalized name and replaces its aliases. The usage counter of an existing
// row is preserved.
func (s *sqlxStore) UpsertCatalogItem(ctx context.Context, item *CatalogItem) error {
	if item == nil {
		return goerr.New("cannot save nil catalog item")
	}
	if item.Name == "" {
		return goerr.New("catalog item must have a name")
	}
	if item.Kind != KindFood && item.Kind != KindExercise {
		return goerr.New("invalid catalog kind", goerr.V("kind", item.Kind))
	}

	item.NormalizedName = normalize.Spaced(item.Name)
	item.CompactName = normalize.Compact(item.Name)
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	return s.withTx(ctx, "upsert_catalog_item", func(tx *sqlx.Tx) error {
		query := `
        INSERT INTO catalog_items (kind, name, normalized_name, compact_name,
            calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g,
            serving_grams, measures, met_light, met_moderate, met_vigorous,
            default_minutes, usage_count, created_at, updated_at)
        VALUES (:kind, :name, :normalized_name, :compact_name,
            :calories_per_100g, :protein_per_100g, :carbs_per_100g, :fat_per_100g,
            :serving_grams, :measures, :met_light, :met_moderate, :met_vigorous,
            :default_minutes, :usage_count, :created_at, :updated_at)
        ON CONFLICT (kind, normalized_name) DO UPDATE SET
            name = excluded.name,
            compact_name = excluded.compact_name,
            calories_per_100g = excluded.calories_per_100g,
            protein_per_100g = excluded.protein_per_100g,
            carbs_per_100g = excluded.carbs_per_100g,
            fat_per_100g = excluded.fat_per_100g,
            serving_grams = excluded.serving_grams,
            measures = excluded.measures,
            met_light = excluded.met_light,
            met_moderate = excluded.met_moderate,
            met_vigorous = excluded.met_vigorous,
            default_minutes = excluded.default_minutes,
            updated_at = excluded.updated_at;
    `
		if _, err := tx.NamedExecContext(ctx, query, item); err != nil {
			s.logger.ErrorContext(ctx, "Error upserting catalog item", "name", item.Name, "error", err)
			return goerr.Wrap(err, "failed to upsert catalog item", goerr.V("name", item.Name))
		}

		if err := tx.GetContext(ctx, &item.ID,
			`SELECT id FROM catalog_items WHERE kind = ? AND normalized_name = ?`,
			item.Kind, item.NormalizedName); err != nil {
			return goerr.Wrap(err, "failed to read catalog item id", goerr.V("name", item.Name))
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_aliases WHERE item_id = ?`, item.ID); err != nil {
			return goerr.Wrap(err, "failed to clear aliases", goerr.V("item_id", item.ID))
		}
		for _, alias := range item.Aliases {
			normalized := normalize.Spaced(alias)
			if normalized == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO catalog_aliases (item_id, alias, normalized_alias, compact_alias) VALUES (?, ?, ?, ?)`,
				item.ID, alias, normalized, normalize.Compact(alias)); err != nil {
				return goerr.Wrap(err, "failed to insert alias", goerr.V("item_id", item.ID), goerr.V("alias", alias))
			}
		}

		s.logger.DebugContext(ctx, "Catalog item saved", "item_id", item.ID, "name", item.Name, "aliases", len(item.Aliases))
		return nil
	})
}

// FindCatalogExact matches the normalized or compact name first and then
// the aliases, preferring the most used item.
func (s *sqlxStore) FindCatalogExact(ctx context.Context, kind CatalogKind, normalized, compact string) (*CatalogItem, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var items []CatalogItem
	query := `
        SELECT ` + catalogColumns + `
        FROM catalog_items ci
        WHERE ci.kind = ? AND (ci.normalized_name = ? OR ci.compact_name = ?)
        ORDER BY ci.usage_count DESC, ci.id ASC
        LIMIT 1;
    `
	if err := s.db.SelectContext(ctx, &items, query, kind, normalized, compact); err != nil {
		return nil, goerr.Wrap(err, "failed to find catalog item by name", goerr.V("query", normalized))
	}
	if len(items) > 0 {
		return &items[0], nil
	}

	aliasQuery := `
        SELECT ` + catalogColumns + `
        FROM catalog_items ci
        JOIN catalog_aliases a ON a.item_id = ci.id
        WHERE ci.kind = ? AND (a.normalized_alias = ? OR a.compact_alias = ?)
        ORDER BY ci.usage_count DESC, ci.id ASC
        LIMIT 1;
    `
	if err := s.db.SelectContext(ctx, &items, aliasQuery, kind, normalized, compact); err != nil {
		return nil, goerr.Wrap(err, "failed to find catalog item by alias", goerr.V("query", normalized))
	}
	if len(items) > 0 {
		return &items[0], nil
	}
	return nil, nil
}

// FindCatalogByPrefix returns items whose normalized name starts with
// prefix, most used first.
func (s *sqlxStore) FindCatalogByPrefix(ctx context.Context, kind CatalogKind, prefix string, limit int) ([]CatalogItem, error) {
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var items []CatalogItem
	query := `
        SELECT ` + catalogColumns + `
        FROM catalog_items ci
        WHERE ci.kind = ? AND ci.normalized_name LIKE ? ESCAPE '\'
        ORDER BY ci.usage_count DESC, ci.id ASC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &items, query, kind, escapeLike(prefix)+"%", limit); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to find catalog items by prefix", goerr.V("prefix", prefix))
	}
	return items, nil
}

// FindCatalogContaining returns items whose normalized name contains any
// of the tokens. Whole-word filtering is left to the caller.
func (s *sqlxStore) FindCatalogContaining(ctx context.Context, kind CatalogKind, tokens []string, limit int) ([]CatalogItem, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	clauses := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)+2)
	args = append(args, kind)
	for _, tok := range tokens {
		clauses = append(clauses, `ci.normalized_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(tok)+"%")
	}
	args = append(args, limit)

	query := `
        SELECT ` + catalogColumns + `
        FROM catalog_items ci
        WHERE ci.kind = ? AND (` + strings.Join(clauses, " OR ") + `)
        ORDER BY ci.usage_count DESC, ci.id ASC
        LIMIT ?;
    `
	var items []CatalogItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to find catalog items by token", goerr.V("tokens", tokens))
	}
	return items, nil
}

// TopCatalogByUsage returns the most used items of a kind.
func (s *sqlxStore) TopCatalogByUsage(ctx context.Context, kind CatalogKind, limit int) ([]CatalogItem, error) {
	if limit <= 0 {
		limit = 200
	}
	var items []CatalogItem
	query := `
        SELECT ` + catalogColumns + `
        FROM catalog_items ci
        WHERE ci.kind = ?
        ORDER BY ci.usage_count DESC, ci.id ASC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &items, query, kind, limit); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to list catalog items by usage", goerr.V("kind", kind))
	}
	return items, nil
}

// BumpCatalogUsage increments the usage counter after a successful resolution.
func (s *sqlxStore) BumpCatalogUsage(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_items SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		at.UTC(), id)
	if err != nil {
		return goerr.Wrap(err, "failed to bump catalog usage", goerr.V("id", id))
	}
	if affected, err := res.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when bumping usage", "item_id", id, "affected", affected)
	}
	return nil
}

// LogResolutionFallback stores a catalog miss.
func (s *sqlxStore) LogResolutionFallback(ctx context.Context, fb *ResolutionFallback) error {
	if fb == nil {
		return goerr.New("cannot save nil fallback")
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO resolution_fallbacks (kind, query, normalized_query, identity, created_at)
        VALUES (:kind, :query, :normalized_query, :identity, :created_at);
    `
	res, err := s.db.NamedExecContext(ctx, query, fb)
	if err != nil {
		return goerr.Wrap(err, "failed to log resolution fallback", goerr.V("query", fb.Query))
	}
	if id, err := res.LastInsertId(); err == nil {
		fb.ID = id
	}
	return nil
}
