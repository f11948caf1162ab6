package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/queue"
	"github.com/rs/zerolog"
)

// DefaultFlushInterval is how often queued points are handed to the writer.
const DefaultFlushInterval = time.Second

// maxPending bounds the points held between flushes.
const maxPending = 50000

// retention of the gameplay bucket
const retentionSeconds = 60 * 60 * 24 * 90

// Manager handles InfluxDB connections and writes. It implements the
// engine's telemetry sink: Record only queues, a flush loop does the I/O.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	cfg           config.InfluxConfig
	pending       *queue.Queue[*influxdb2_write.Point]
	backupFile    io.Closer
	mu            sync.Mutex
	flushInterval time.Duration
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Logger:        log,
		BackupPath:    backupPath,
		cfg:           cfg,
		pending:       queue.NewBounded[*influxdb2_write.Point](maxPending),
		flushInterval: DefaultFlushInterval,
	}
}

// Connect establishes a connection to InfluxDB. When the server is disabled
// or unreachable points go to the gzip backup file instead, if one is set.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.Logger.Info().Msg("InfluxDB disabled")
		return m.openBackup()
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn().Err(err).Str("backupPath", m.BackupPath).
			Msg("InfluxDB client failed to initialize, using backup writer")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil || m.BackupPath == "" {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %v", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: retentionSeconds,
	})
	if err != nil {
		m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
}

// Record queues one measurement.
func (m *Manager) Record(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	m.pending.Push(influxdb2.NewPoint(measurement, tags, fields, at))
}

// Pending returns the number of queued points.
func (m *Manager) Pending() int {
	return m.pending.Len()
}

// Dropped returns how many points were discarded because the queue was full.
func (m *Manager) Dropped() uint64 {
	return m.pending.Dropped()
}

// Run flushes queued points until ctx is done, then flushes once more.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return m.Flush()
		case <-ticker.C:
			if err := m.Flush(); err != nil {
				m.Logger.Error().Err(err).Msg("Error flushing telemetry")
			}
		}
	}
}

// Flush writes every queued point. Without a server or backup the points
// are dropped.
func (m *Manager) Flush() error {
	points := m.pending.Drain()
	if len(points) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, p := range points {
		if err := m.writePoint(p); err != nil {
			errs = append(errs, err)
		}
	}
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Flush())
	}
	return errors.Join(errs...)
}

// writePoint writes a point to InfluxDB or backup file.
func (m *Manager) writePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return nil
	}

	lineProtocol := strings.TrimSuffix(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	err := m.Flush()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		err = errors.Join(err, m.BackupWriter.Close(), m.backupFile.Close())
		m.BackupWriter = nil
	}
	return err
}
