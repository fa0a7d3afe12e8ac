// Package migration applies versioned SQL files to a SQLite database.
//
// Files follow the {version}_{description}.sql naming convention and are
// read from an fs.FS, normally an embed.FS compiled into the binary. Applied
// versions and their checksums are tracked in the schema_migrations table so
// each file runs once; editing an applied file is reported as
// ErrChecksumMismatch.
//
//	db, err := migration.OpenDB(ctx, migration.DefaultSQLiteConfig(path))
//	...
//	applied, err := migration.Apply(ctx, db, migrationsFS, logger)
package migration
