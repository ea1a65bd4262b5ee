// Package schemarefresh keeps the report catalog and the saved report
// definitions current. Each build produces an immutable snapshot that is
// swapped in atomically, so a report run always sees one consistent catalog.
package schemarefresh

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"reportgen/internal/introspection"
	"reportgen/internal/logging"
	"reportgen/internal/naming"
	"reportgen/internal/observability"
	"reportgen/internal/report"
	"reportgen/internal/schema"
)

// ErrUnknownRoot is returned when a report definition names a model the catalog lacks.
var ErrUnknownRoot = errors.New("report root is not a known model")

// Snapshot is an immutable view of the catalog and the report definitions.
type Snapshot struct {
	DBSchema    *introspection.Schema
	Catalog     *schema.Catalog
	Definitions []*report.Definition
	BuiltAt     time.Time
	Fingerprint string

	byName map[string]*report.Definition
}

// Definition returns the named report definition.
func (s *Snapshot) Definition(name string) (*report.Definition, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.byName[name]
	return d, ok
}

// Config controls catalog building and refresh behavior.
type Config struct {
	DB           *sql.DB
	DatabaseName string
	// DefinitionsDir holds the report YAML files. Empty loads no definitions.
	DefinitionsDir string
	Naming         naming.Config
	ExcludeTables  []string
	Properties     []schema.PropertyDefinition
	CustomFields   schema.CustomFieldRegistry
	Logger         *logging.Logger
	Metrics        *observability.ReloadMetrics
	// MinInterval is the first poll delay; zero disables polling.
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Manager maintains and refreshes snapshots.
type Manager struct {
	db             *sql.DB
	databaseName   string
	definitionsDir string
	naming         naming.Config
	excludeTables  []string
	properties     []schema.PropertyDefinition
	customFields   schema.CustomFieldRegistry
	logger         *logging.Logger
	metrics        *observability.ReloadMetrics
	minInterval    time.Duration
	maxInterval    time.Duration

	reloadMu sync.Mutex
	active   atomic.Pointer[Snapshot]
	wg       sync.WaitGroup
}

// NewManager builds the initial snapshot and returns a manager.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("catalog manager requires a database handle")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	maxInterval := cfg.MaxInterval
	if maxInterval < cfg.MinInterval {
		maxInterval = cfg.MinInterval
	}

	m := &Manager{
		db:             cfg.DB,
		databaseName:   cfg.DatabaseName,
		definitionsDir: cfg.DefinitionsDir,
		naming:         cfg.Naming,
		excludeTables:  append([]string(nil), cfg.ExcludeTables...),
		properties:     append([]schema.PropertyDefinition(nil), cfg.Properties...),
		customFields:   cfg.CustomFields,
		logger:         cfg.Logger.WithFields(slog.String("component", "catalog_refresh")),
		metrics:        cfg.Metrics,
		minInterval:    cfg.MinInterval,
		maxInterval:    maxInterval,
	}
	if err := m.ReloadContext(ctx, observability.TriggerStartup); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns the active snapshot.
func (m *Manager) Current() *Snapshot {
	return m.active.Load()
}

// ReloadContext rebuilds the catalog, rereads the definitions and swaps the
// snapshot in. On failure the previous snapshot stays active.
func (m *Manager) ReloadContext(ctx context.Context, trigger string) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	start := time.Now()
	fingerprint, _, err := m.computeFingerprint(ctx)
	if err != nil {
		m.logger.Warn("failed to compute schema fingerprint", slog.String("error", err.Error()))
	}
	snapshot, err := m.buildSnapshot(ctx, fingerprint)
	if err != nil {
		m.recordReload(ctx, time.Since(start), false, trigger, 0)
		return err
	}
	m.active.Store(snapshot)
	m.recordReload(ctx, time.Since(start), true, trigger, len(snapshot.Definitions))
	m.logger.Info("catalog loaded",
		slog.String("trigger", trigger),
		slog.Int("models", len(snapshot.Catalog.Models())),
		slog.Int("reports", len(snapshot.Definitions)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Start begins the background poll loop when polling is enabled.
func (m *Manager) Start(ctx context.Context) {
	if m.minInterval <= 0 {
		m.logger.Info("catalog polling disabled")
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Wait blocks until the poll loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("catalog polling stopped")
			return
		case <-timer.C:
			interval = m.refreshOnce(ctx, interval)
			timer.Reset(interval)
		}
	}
}

// refreshOnce reloads when the fingerprint moved and returns the next poll delay.
func (m *Manager) refreshOnce(ctx context.Context, interval time.Duration) time.Duration {
	fingerprint, components, err := m.computeFingerprint(ctx)
	if err != nil {
		m.logger.Warn("schema fingerprint check failed", slog.String("error", err.Error()))
		return m.minInterval
	}
	if current := m.Current(); current != nil && current.Fingerprint == fingerprint {
		return nextInterval(interval, m.minInterval, m.maxInterval)
	}

	m.logger.Info("schema or definitions changed, reloading",
		slog.String("fingerprint", fingerprint),
		slog.Any("components", components),
	)
	if err := m.ReloadContext(ctx, observability.TriggerPoll); err != nil {
		m.logger.Error("failed to reload catalog", slog.String("error", err.Error()))
	}
	return m.minInterval
}

func (m *Manager) buildSnapshot(ctx context.Context, fingerprint string) (*Snapshot, error) {
	dbSchema, catalog, err := BuildCatalog(ctx, BuildConfig{
		Queryer:       m.db,
		DatabaseName:  m.databaseName,
		Naming:        m.naming,
		ExcludeTables: m.excludeTables,
		Properties:    m.properties,
		CustomFields:  m.customFields,
		Logger:        m.logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	var defs []*report.Definition
	if m.definitionsDir != "" {
		defs, err = report.LoadDefinitions(m.definitionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load report definitions: %w", err)
		}
	}
	return NewSnapshot(dbSchema, catalog, defs, fingerprint)
}

// NewSnapshot indexes defs by name. Every definition root must be a model of catalog.
func NewSnapshot(dbSchema *introspection.Schema, catalog *schema.Catalog, defs []*report.Definition, fingerprint string) (*Snapshot, error) {
	byName := make(map[string]*report.Definition, len(defs))
	for _, d := range defs {
		if _, ok := catalog.Model(d.Root); !ok {
			return nil, fmt.Errorf("%w: report %s uses root %q", ErrUnknownRoot, d.Name, d.Root)
		}
		byName[d.Name] = d
	}

	return &Snapshot{
		DBSchema:    dbSchema,
		Catalog:     catalog,
		Definitions: defs,
		BuiltAt:     time.Now(),
		Fingerprint: fingerprint,
		byName:      byName,
	}, nil
}

var fingerprintQueries = []struct {
	name  string
	query string
}{
	{
		name: "tables",
		query: `
			SELECT TABLE_NAME, TABLE_TYPE
			FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = ?
				AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
			ORDER BY TABLE_NAME, TABLE_TYPE
		`,
	},
	{
		name: "columns",
		query: `
			SELECT TABLE_NAME, COLUMN_NAME, CAST(ORDINAL_POSITION AS CHAR), COLUMN_TYPE, IS_NULLABLE
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = ?
			ORDER BY TABLE_NAME, ORDINAL_POSITION, COLUMN_NAME
		`,
	},
	{
		name: "keys",
		query: `
			SELECT TABLE_NAME, CONSTRAINT_NAME, COLUMN_NAME,
				COALESCE(REFERENCED_TABLE_NAME, ''), COALESCE(REFERENCED_COLUMN_NAME, '')
			FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = ?
			ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION, COLUMN_NAME
		`,
	},
}

// computeFingerprint hashes the structural schema metadata and the
// definition files. It returns the combined hash and the per-component hashes.
func (m *Manager) computeFingerprint(ctx context.Context) (string, map[string]string, error) {
	ctx, span := otel.Tracer("reportgen/schemarefresh").Start(ctx, "schemarefresh.compute_fingerprint")
	defer span.End()
	span.SetAttributes(attribute.String("db.name", m.databaseName))

	components := make(map[string]string, len(fingerprintQueries)+1)
	for _, q := range fingerprintQueries {
		hash, err := hashComponentQuery(ctx, m.db, q.query, m.databaseName)
		if err != nil {
			span.RecordError(err)
			return "", nil, fmt.Errorf("failed to hash %s component: %w", q.name, err)
		}
		components[q.name] = hash
	}
	defs, err := hashDefinitionFiles(m.definitionsDir)
	if err != nil {
		span.RecordError(err)
		return "", nil, err
	}
	components["definitions"] = defs
	return combineComponentHashes(components), components, nil
}

func hashComponentQuery(ctx context.Context, queryer introspection.Queryer, query string, args ...any) (string, error) {
	rows, err := queryer.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}
	values := make([]sql.NullString, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}

	hash := sha256.New()
	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return "", err
		}
		// Length-prefixed cells keep "a|b" and "a", "b" apart.
		for _, v := range values {
			_, _ = fmt.Fprintf(hash, "%d:%s|", len(v.String), v.String)
		}
		_, _ = hash.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// hashDefinitionFiles hashes names, sizes and modification times of the
// definition files, enough to notice edits without reading them.
func hashDefinitionFiles(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read report directory: %w", err)
	}
	hash := sha256.New()
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return "", err
		}
		_, _ = fmt.Fprintf(hash, "%s|%d|%d\n", entry.Name(), info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func combineComponentHashes(components map[string]string) string {
	if len(components) == 0 {
		return ""
	}
	keys := make([]string, 0, len(components))
	for key := range components {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hash := sha256.New()
	for _, key := range keys {
		_, _ = fmt.Fprintf(hash, "%s=%s\n", key, components[key])
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}

func (m *Manager) recordReload(ctx context.Context, duration time.Duration, success bool, trigger string, definitions int) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordReload(context.WithoutCancel(ctx), duration, success, trigger, definitions)
}
