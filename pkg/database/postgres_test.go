package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dunelens/dunelens/pkg/apperrors"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("insert", nil))

	plain := WrapError("insert analyzed query", errors.New("duplicate key"))
	assert.EqualError(t, plain, "failed to insert analyzed query: duplicate key")
	assert.NotErrorIs(t, plain, apperrors.ErrStorageUnavailable)

	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	down := WrapError("list candidates", dial)
	assert.ErrorIs(t, down, apperrors.ErrStorageUnavailable)
	assert.ErrorIs(t, down, dial)
}

func TestIsUnavailable(t *testing.T) {
	assert.True(t, IsUnavailable(context.DeadlineExceeded))
	assert.True(t, IsUnavailable(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.True(t, IsUnavailable(errors.New("closed pool")))
	assert.True(t, IsUnavailable(apperrors.ErrStorageUnavailable))
	assert.False(t, IsUnavailable(errors.New("syntax error at or near")))
}

func TestDB_PingNil(t *testing.T) {
	var db *DB
	assert.ErrorIs(t, db.Ping(context.Background()), apperrors.ErrStorageUnavailable)
}
