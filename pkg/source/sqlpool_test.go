package source

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/dialect"
)

func TestSQLPoolAcquireHealthChecksWithPingQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, _ := dialect.Get(dialect.Postgres)
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	pool := NewSQLPool(db, d, time.Second)
	conn, err := pool.Acquire(context.Background())

	require.NoError(t, err)
	require.NotNil(t, conn)
	conn.Release()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPoolAcquireFailsWhenPingQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, _ := dialect.Get(dialect.MySQL)
	mock.ExpectExec("SELECT 1").WillReturnError(assert.AnError)
	mock.MatchExpectationsInOrder(false)

	pool := NewSQLPool(db, d, time.Second)
	_, err = pool.Acquire(context.Background())

	assert.Error(t, err)
}

func TestSQLConnQueryReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, _ := dialect.Get(dialect.MySQL)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"region", "revenue"}).AddRow("us", 100)
	mock.ExpectQuery("SELECT region, revenue FROM orders").WillReturnRows(rows)

	pool := NewSQLPool(db, d, time.Second)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	got, err := conn.Query(context.Background(), "SELECT region, revenue FROM orders")
	require.NoError(t, err)

	cols, err := got.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "revenue"}, cols)

	require.True(t, got.Next())
	var region string
	var revenue int
	require.NoError(t, got.Scan(&region, &revenue))
	assert.Equal(t, "us", region)
	assert.Equal(t, 100, revenue)
}

func TestSQLPoolAcquireTimesOutAsUpstreamBusy(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, _ := dialect.Get(dialect.MySQL)
	pool := NewSQLPool(db, d, time.Nanosecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err = pool.Acquire(ctx)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindUpstreamBusy, apiErr.Kind)
}
