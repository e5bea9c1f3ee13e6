package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// SchemaState はマイグレーション適用後のスキーマの状態。
type SchemaState struct {
	// Version は適用済みの最新バージョン。未適用なら0。
	Version uint
	// Previous は実行前のバージョン。
	Previous uint
	// Dirty は途中で失敗したマイグレーションが残っている場合にtrue。
	Dirty bool
}

// Changed は今回の実行でスキーマが進んだ場合にtrueを返す。
func (s SchemaState) Changed() bool {
	return s.Version != s.Previous
}

// OpenMigrator は埋め込みのカタログ・アカウントスキーマを読むmigrateインスタンスを返す。
// 呼び出し側でCloseすること。
func OpenMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded schema: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、前後のバージョンを返す。
// 最新であればスキーマは変更せずに現在のバージョンを返す。
func RunMigrations(databaseURL string) (SchemaState, error) {
	m, err := OpenMigrator(databaseURL)
	if err != nil {
		return SchemaState{}, err
	}
	defer m.Close()

	var state SchemaState
	state.Previous, state.Dirty, err = schemaVersion(m)
	if err != nil {
		return state, err
	}
	if state.Dirty {
		return state, fmt.Errorf("schema version %d is dirty, fix it manually before migrating", state.Previous)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return state, fmt.Errorf("apply migrations from version %d: %w", state.Previous, err)
	}

	state.Version, state.Dirty, err = schemaVersion(m)
	return state, err
}

// schemaVersion は現在のバージョンを返す。未適用のDBは0として扱う。
func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}
