package migrations

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpExecutesUpFilesOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS pending_registrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Up(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpReportsFailingFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = Up(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000001_pending_registrations.up.sql")
}
