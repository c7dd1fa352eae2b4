package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSSLMode(t *testing.T) {
	assert.Equal(t,
		"postgres://u:p@localhost:5432/chat?sslmode=disable",
		withSSLMode("postgres://u:p@localhost:5432/chat"))
	assert.Equal(t,
		"postgres://u:p@localhost:5432/chat?connect_timeout=5&sslmode=disable",
		withSSLMode("postgres://u:p@localhost:5432/chat?connect_timeout=5"))
	assert.Equal(t,
		"postgres://u:p@db/chat?sslmode=require",
		withSSLMode("postgres://u:p@db/chat?sslmode=require"))
	assert.Equal(t,
		"host=localhost dbname=chat sslmode=disable",
		withSSLMode("host=localhost dbname=chat"))
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	assert.Error(t, err)
}
