package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/vfile"
)

var collectionColumns = []string{"id", "collection_name", "description", "info", "created_at"}

func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (*vfile.Collection, error) {
	existing, err := s.findCollectionByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	stored := vfile.Collection{
		ID:        core.MustNewID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	query, args, err := squirrel.Insert("collections").
		Columns(collectionColumns...).
		Values(stored.ID, stored.Name, stored.Description, stored.Info, stored.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building collection insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return s.findCollectionByName(ctx, name)
		}
		return nil, fmt.Errorf("inserting collection: %w", err)
	}
	return &stored, nil
}

func (s *Store) findCollectionByName(ctx context.Context, name string) (*vfile.Collection, error) {
	query, args, err := squirrel.Select(collectionColumns...).
		From("collections").
		Where(squirrel.Eq{"collection_name": name}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building collection select: %w", err)
	}
	var collection vfile.Collection
	if err := pgxscan.Get(ctx, s.db, &collection, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("collection %q: %w", name, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning collection: %w", err)
	}
	return &collection, nil
}

func (s *Store) GetCollection(ctx context.Context, id core.ID) (*vfile.Collection, error) {
	query, args, err := squirrel.Select(collectionColumns...).
		From("collections").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building collection select: %w", err)
	}
	var collection vfile.Collection
	if err := pgxscan.Get(ctx, s.db, &collection, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("collection %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning collection: %w", err)
	}
	return &collection, nil
}

func (s *Store) AddFileToCollection(ctx context.Context, fileID, collectionID core.ID) error {
	query, args, err := squirrel.Insert("vfile_collections").
		Columns("id", "vfile_id", "collection_id", "created_at").
		Values(core.MustNewID(), fileID, collectionID, time.Now().UTC()).
		Suffix("ON CONFLICT (vfile_id, collection_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building membership insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("attaching file to collection: %w", err)
	}
	return nil
}
