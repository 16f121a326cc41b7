package source

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestGateway(t *testing.T) (Gateway, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return NewGateway(conn, zap.NewNop()), conn
}

func TestGatewayQueryScansRows(t *testing.T) {
	gw, conn := newTestGateway(t)
	require.NoError(t, conn.Exec(
		`CREATE TABLE things (id TEXT PRIMARY KEY, n INTEGER)`).Error)
	require.NoError(t, conn.Exec(
		`INSERT INTO things (id, n) VALUES ('a', 1), ('b', 2)`).Error)

	rows, err := gw.Query(context.Background(),
		"select id, n from things order by id", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["id"])
	assert.EqualValues(t, 1, rows[0]["n"])
}

func TestGatewayQueryBindsNamedParams(t *testing.T) {
	gw, conn := newTestGateway(t)
	require.NoError(t, conn.Exec(
		`CREATE TABLE things (id TEXT PRIMARY KEY, n INTEGER)`).Error)
	require.NoError(t, conn.Exec(
		`INSERT INTO things (id, n) VALUES ('a', 1), ('b', 2)`).Error)

	rows, err := gw.Query(context.Background(),
		"select id from things where n > @n", map[string]any{"n": 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["id"])
}

func TestGatewayQueryError(t *testing.T) {
	gw, _ := newTestGateway(t)
	_, err := gw.Query(context.Background(), "select * from missing", nil)
	require.Error(t, err)
}
