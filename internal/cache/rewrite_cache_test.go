package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	k := Key("hello")
	assert.True(t, strings.HasPrefix(k, "article-voice:rewrite:"))
	assert.Equal(t, "article-voice:rewrite:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", k)
	assert.NotEqual(t, Key("hello"), Key("hello\n"))
}

func TestRewriteCache_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &RewriteCache{client: db, ttl: time.Hour}
	ctx := context.TODO()

	// Hit
	mock.ExpectGet(Key("raw")).SetVal("edited")
	val, ok, err := c.Get(ctx, "raw")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "edited", val)

	// Miss
	mock.ExpectGet(Key("raw")).RedisNil()
	_, ok, err = c.Get(ctx, "raw")
	assert.NoError(t, err)
	assert.False(t, ok)

	// Error
	mock.ExpectGet(Key("raw")).SetErr(errors.New("connection reset"))
	_, ok, err = c.Get(ctx, "raw")
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "redis get failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRewriteCache_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &RewriteCache{client: db, ttl: 24 * time.Hour}
	ctx := context.TODO()

	mock.ExpectSet(Key("raw"), "edited", 24*time.Hour).SetVal("OK")
	assert.NoError(t, c.Set(ctx, "raw", "edited"))

	mock.ExpectSet(Key("raw"), "edited", 24*time.Hour).SetErr(errors.New("OOM"))
	err := c.Set(ctx, "raw", "edited")
	assert.Contains(t, err.Error(), "redis set failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRewriteCache_Healthy(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &RewriteCache{client: db}

	mock.ExpectPing().SetVal("PONG")
	ok, err := c.Healthy(context.TODO())
	assert.True(t, ok)
	assert.NoError(t, err)

	mock.ExpectPing().SetErr(errors.New("down"))
	ok, _ = c.Healthy(context.TODO())
	assert.False(t, ok)
}
