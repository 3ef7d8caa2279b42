// Package dbtest abre bancos SQLite descartáveis para os testes.
package dbtest

import (
	"path/filepath"
	"testing"

	"celulas-backend/internal/database"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// New abre um banco migrado num diretório temporário e o fecha no fim do teste.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	url := "sqlite:" + filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(url, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, zap.NewNop()))

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
