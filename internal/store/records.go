package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// contentRecord memoizes the hash observed for a file identity.
type contentRecord struct {
	bun.BaseModel `bun:"table:content_records"`

	ID      int64  `bun:"id,pk,autoincrement"`
	AbsPath string `bun:"abs_path,notnull"`
	Hash    string `bun:"hash,notnull"`
	MTime   int64  `bun:"mtime,notnull"`
	Size    int64  `bun:"size,notnull"`
}

// identity is the key content records are looked up by.
type identity struct {
	AbsPath string
	MTime   int64
	Size    int64
}

func (id identity) key() string {
	return fmt.Sprintf("%s\x00%d\x00%d", id.AbsPath, id.MTime, id.Size)
}

type recordIndex struct {
	db *bun.DB
}

func openRecordIndex(ctx context.Context, path string) (*recordIndex, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY
	// between our own goroutines.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*contentRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create content_records: %w", err)
	}

	if _, err := db.NewCreateIndex().
		Model((*contentRecord)(nil)).
		Index("content_records_identity_hash_idx").
		Unique().
		IfNotExists().
		Column("abs_path", "mtime", "size", "hash").
		Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create content_records index: %w", err)
	}

	return &recordIndex{db: db}, nil
}

// Lookup returns every hash recorded for the identity.
func (r *recordIndex) Lookup(ctx context.Context, id identity) ([]string, error) {
	var records []contentRecord
	err := r.db.NewSelect().
		Model(&records).
		Column("hash").
		Where("abs_path = ?", id.AbsPath).
		Where("mtime = ?", id.MTime).
		Where("size = ?", id.Size).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(records))
	for _, rec := range records {
		hashes = append(hashes, rec.Hash)
	}
	return hashes, nil
}

// Put records hash for the identity. Repeated puts are no-ops.
func (r *recordIndex) Put(ctx context.Context, id identity, hash string) error {
	rec := &contentRecord{
		AbsPath: id.AbsPath,
		Hash:    hash,
		MTime:   id.MTime,
		Size:    id.Size,
	}
	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (abs_path, mtime, size, hash) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *recordIndex) Close() error {
	return r.db.Close()
}
