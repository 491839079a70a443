// Package influx ships usage and performance telemetry to InfluxDB.
// When the server is unreachable, points fall back to a gzipped
// line-protocol file next to the session logs so nothing is lost.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/viewmark/extension/pkg/core"
)

// UsageBucket receives bookmark interaction points.
const UsageBucket = "bookmark_usage"

// PerformanceBucket receives engine timing points.
const PerformanceBucket = "engine_performance"

// bucketRetentionSeconds is 90 days.
const bucketRetentionSeconds = 60 * 60 * 24 * 90

// Manager owns the InfluxDB client, per-bucket writers, and the backup
// file used when the server is down.
type Manager struct {
	client     influxdb2.Client
	writers    map[string]influxdb2_api.WriteAPI
	backup     *gzip.Writer
	healthy    bool
	buckets    []string
	log        zerolog.Logger
	backupPath string
}

func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		writers:    make(map[string]influxdb2_api.WriteAPI),
		buckets:    []string{UsageBucket, PerformanceBucket},
		log:        log,
		backupPath: backupPath,
	}
}

// Connect dials InfluxDB from viper config. An unreachable server is
// not an error: the manager degrades to the backup file.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	url := fmt.Sprintf("%s://%s:%s",
		viper.GetString("influx.protocol"),
		viper.GetString("influx.host"),
		viper.GetString("influx.port"))
	m.client = influxdb2.NewClientWithOptions(url,
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().SetBatchSize(500).SetFlushInterval(1000))

	running, err := m.client.Ping(context.Background())
	m.healthy = err == nil && running

	if !m.healthy {
		m.log.Warn().Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, telemetry goes to backup file")
		return m.openBackup()
	}

	if err := m.ensureOrgAndBuckets(); err != nil {
		return err
	}
	m.createWriters()
	m.log.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	file, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %v", err)
	}
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) ensureOrgAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")
	orgsAPI := m.client.OrganizationsAPI()

	org, err := orgsAPI.FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.log.Info().Str("org", orgName).Msg("Organization not found, creating")
		if org, err = orgsAPI.CreateOrganizationWithName(ctx, orgName); err != nil {
			return fmt.Errorf("creating organization %q: %w", orgName, err)
		}
	}

	bucketsAPI := m.client.BucketsAPI()
	for _, bucket := range m.buckets {
		if _, err := bucketsAPI.FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.log.Info().Str("bucket", bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err := bucketsAPI.CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: bucketRetentionSeconds,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %q: %w", bucket, err)
		}
	}
	return nil
}

func (m *Manager) createWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.buckets {
		w := m.client.WriteAPI(orgName, bucket)
		m.writers[bucket] = w

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.log.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
}

// WritePoint sends a point to the bucket, or to the backup file when
// the client never came up.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.healthy {
		w, ok := m.writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// WriteUsage writes one bookmark usage event to the usage bucket.
func (m *Manager) WriteUsage(ctx context.Context, projectName string, e *core.UsageEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	point := influxdb2_write.NewPoint(
		"bookmark_usage",
		map[string]string{
			"project": projectName,
			"action":  e.Action,
			"context": string(e.Context),
		},
		map[string]interface{}{
			"index": e.Index,
		},
		ts,
	)
	return m.WritePoint(ctx, UsageBucket, point)
}

// ProcessMetricData parses a metric the host serialized as a string
// array and returns the destination bucket and point. Layout:
// data[0] bucket, data[1] measurement, then any number of
// "tag::name::value" and "field::type::name::value" entries where type
// is string, int or float.
func ProcessMetricData(data []string, fixEscapeQuotes func(string) string, trimQuotes func(string) string) (
	bucket string,
	point *influxdb2_write.Point,
	err error,
) {
	for i, v := range data {
		data[i] = fixEscapeQuotes(trimQuotes(v))
	}

	if len(data) < 2 {
		return "", nil, fmt.Errorf("metric data needs at least bucket and measurement, got %d fields", len(data))
	}

	bucket = data[0]
	point = influxdb2_write.NewPointWithMeasurement(data[1])

	for _, entry := range data[2:] {
		parts := strings.Split(entry, "::")
		switch {
		case strings.HasPrefix(entry, "tag::") && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])

		case strings.HasPrefix(entry, "field::") && len(parts) >= 4:
			fieldType, fieldName, fieldValue := parts[1], parts[2], parts[3]
			switch fieldType {
			case "string":
				point.AddField(fieldName, fieldValue)
			case "int":
				intVal, convErr := strconv.Atoi(fieldValue)
				if convErr != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to int: %w", fieldValue, convErr)
				}
				point.AddField(fieldName, intVal)
			case "float":
				floatVal, convErr := strconv.ParseFloat(fieldValue, 64)
				if convErr != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to float: %w", fieldValue, convErr)
				}
				point.AddField(fieldName, floatVal)
			}
		}
	}

	return bucket, point, nil
}
