package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/cfdi/backend/internal/infrastructure/config"
	"github.com/cfdi/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type ticketRow struct {
	ID     uint   `gorm:"primaryKey"`
	Folio  string `gorm:"size:40"`
	Status string `gorm:"size:20"`
}

func (ticketRow) TableName() string { return "tickets" }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ticketRow{}))
	return db
}

func tracedDB(t *testing.T, cfg DBTracingConfig) (*gorm.DB, func() []sdktrace.ReadOnlySpan) {
	t.Helper()
	recorder := useSpanRecorder(t)
	db := setupTestDB(t)
	require.NoError(t, NewDBTracingPlugin(cfg, zaptest.NewLogger(t)).RegisterOtelGorm(db))
	return db, recorder.Ended
}

func TestDBTracingConfigFrom(t *testing.T) {
	cfg := DBTracingConfigFrom(config.TelemetryConfig{Enabled: true, DBTraceEnabled: true}, "cfdi")
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, DefaultSlowQueryThreshold, cfg.SlowQueryThresh)
	assert.Equal(t, "cfdi", cfg.DBName)

	cfg = DBTracingConfigFrom(config.TelemetryConfig{
		Enabled:           false,
		DBTraceEnabled:    true,
		DBSlowQueryThresh: time.Second,
	}, "cfdi")
	assert.False(t, cfg.Enabled, "db tracing needs telemetry enabled")
	assert.Equal(t, time.Second, cfg.SlowQueryThresh)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db, ended := tracedDB(t, DBTracingConfig{Enabled: false})

	require.NoError(t, db.Create(&ticketRow{Folio: "T-1"}).Error)
	assert.Empty(t, ended())
}

func TestDBTracingPlugin_TracesQueries(t *testing.T) {
	db, ended := tracedDB(t, DBTracingConfig{Enabled: true, SlowQueryThresh: time.Hour, DBName: "cfdi"})

	require.NoError(t, db.Create(&ticketRow{Folio: "T-1", Status: "OPEN"}).Error)

	spans := ended()
	require.NotEmpty(t, spans)
	attrs := attrMap(spans[len(spans)-1].Attributes())
	assert.Equal(t, "tickets", attrs["db.sql.table"].AsString())
	assert.Equal(t, int64(1), attrs["db.rows_affected"].AsInt64())
	assert.NotContains(t, attrs, attribute.Key("db.slow_query"))
}

func TestDBTracingPlugin_SlowQuery(t *testing.T) {
	db, ended := tracedDB(t, DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond, DBName: "cfdi"})

	var rows []ticketRow
	require.NoError(t, db.Find(&rows).Error)

	spans := ended()
	require.NotEmpty(t, spans)
	span := spans[len(spans)-1]
	assert.True(t, attrMap(span.Attributes())["db.slow_query"].AsBool())

	var names []string
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "slow_query_warning")
}

func TestDBTracingPlugin_CatalogQuery(t *testing.T) {
	db, ended := tracedDB(t, DBTracingConfig{Enabled: true, SlowQueryThresh: time.Hour, DBName: "cfdi"})

	ctx := logger.WithCatalogQuery(context.Background())
	var count int64
	err := db.WithContext(ctx).Table("cfdi_missing").Count(&count).Error
	require.Error(t, err)

	spans := ended()
	require.NotEmpty(t, spans)
	span := spans[len(spans)-1]
	assert.True(t, attrMap(span.Attributes())["cfdi.catalog_query"].AsBool())

	var names []string
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "catalog_query_failed")
}

func TestDBTracingPlugin_ErrorMarksSpan(t *testing.T) {
	db, ended := tracedDB(t, DBTracingConfig{Enabled: true, SlowQueryThresh: time.Hour, DBName: "cfdi"})

	var count int64
	require.Error(t, db.Table("cfdi_missing").Count(&count).Error)

	spans := ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, codes.Error, spans[len(spans)-1].Status().Code)
	assert.NotContains(t, attrMap(spans[len(spans)-1].Attributes()), attribute.Key("cfdi.catalog_query"))
}
