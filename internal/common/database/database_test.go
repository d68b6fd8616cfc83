package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"template-publisher/internal/common/config"
)

func TestNewRedis(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	client := &PostgresClient{DB: db}
	mock.ExpectPing()
	mock.ExpectClose()

	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDSN(t *testing.T) {
	cfg := config.PostgresConfig{Host: "db", Port: 5432, User: "pub", Password: "pw", Database: "publisher", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=pub password=pw dbname=publisher sslmode=disable", cfg.GetDSN())
}

func TestElasticsearchClient_Ping(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(status)
	}))
	defer server.Close()

	client, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{server.URL}})
	require.NoError(t, err)

	assert.NoError(t, client.Ping(context.Background()))

	status = http.StatusServiceUnavailable
	assert.Error(t, client.Ping(context.Background()))
}
