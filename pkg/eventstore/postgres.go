package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/castellan/castellan/pkg/database"
	"github.com/castellan/castellan/pkg/models"
)

// PostgresStore persists events to the security_events table. Appends
// use ON CONFLICT DO NOTHING so replays and concurrent writers keep the
// first-writer-wins semantics without round-trips.
type PostgresStore struct {
	client *database.Client
}

// NewPostgresStore creates a store over a migrated database client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

type eventRow struct {
	ID                 string          `db:"id"`
	UniqueID           string          `db:"unique_id"`
	TS                 time.Time       `db:"ts"`
	Host               string          `db:"host"`
	Channel            string          `db:"channel"`
	EventID            int             `db:"event_id"`
	Level              string          `db:"level"`
	Username           string          `db:"username"`
	Message            string          `db:"message"`
	Raw                string          `db:"raw"`
	EventType          string          `db:"event_type"`
	RiskLevel          string          `db:"risk_level"`
	Confidence         int             `db:"confidence"`
	Summary            string          `db:"summary"`
	MitreTechniques    json.RawMessage `db:"mitre_techniques"`
	RecommendedActions json.RawMessage `db:"recommended_actions"`
	Enrichment         json.RawMessage `db:"enrichment"`
	CorrelationScore   float64         `db:"correlation_score"`
	BurstScore         float64         `db:"burst_score"`
	AnomalyScore       float64         `db:"anomaly_score"`
	IsDeterministic    bool            `db:"is_deterministic"`
	IsCorrelationBased bool            `db:"is_correlation_based"`
	IsEnhanced         bool            `db:"is_enhanced"`
	CreatedAt          time.Time       `db:"created_at"`
}

const insertEvent = `
INSERT INTO security_events (
	id, unique_id, ts, host, channel, event_id, level, username, message, raw,
	event_type, risk_level, confidence, summary,
	mitre_techniques, recommended_actions, enrichment,
	correlation_score, burst_score, anomaly_score,
	is_deterministic, is_correlation_based, is_enhanced
) VALUES (
	:id, :unique_id, :ts, :host, :channel, :event_id, :level, :username, :message, :raw,
	:event_type, :risk_level, :confidence, :summary,
	:mitre_techniques, :recommended_actions, :enrichment,
	:correlation_score, :burst_score, :anomaly_score,
	:is_deterministic, :is_correlation_based, :is_enhanced
) ON CONFLICT (id) DO NOTHING`

const selectColumns = `
	id, unique_id, ts, host, channel, event_id, level, username, message, raw,
	event_type, risk_level, confidence, summary,
	mitre_techniques, recommended_actions, enrichment,
	correlation_score, burst_score, anomaly_score,
	is_deterministic, is_correlation_based, is_enhanced, created_at`

// Append inserts the event; false means the ID was already present.
func (s *PostgresStore) Append(ctx context.Context, se *models.SecurityEvent) (bool, error) {
	row, err := rowFrom(se)
	if err != nil {
		return false, fmt.Errorf("failed to encode security event: %w", err)
	}

	res, err := s.client.NamedExecContext(ctx, insertEvent, row)
	if err != nil {
		return false, fmt.Errorf("failed to insert security event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected > 0, nil
}

// GetByID fetches one event by its derived ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.SecurityEvent, error) {
	var row eventRow
	err := s.client.GetContext(ctx, &row,
		"SELECT"+selectColumns+" FROM security_events WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query security event: %w", err)
	}
	return row.toModel()
}

// Query selects by time range and optional type/risk filters, ordered
// by timestamp then ID.
func (s *PostgresStore) Query(ctx context.Context, f QueryFilter) ([]*models.SecurityEvent, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.From.IsZero() {
		where = append(where, "ts >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "ts <= "+arg(f.To))
	}
	if f.EventType != "" {
		where = append(where, "event_type = "+arg(string(f.EventType)))
	}
	if f.RiskLevel != "" {
		where = append(where, "risk_level = "+arg(string(f.RiskLevel)))
	}

	q := "SELECT" + selectColumns + " FROM security_events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts ASC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	var rows []eventRow
	if err := s.client.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	out := make([]*models.SecurityEvent, 0, len(rows))
	for i := range rows {
		se, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, nil
}

// Count returns the stored event count.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.client.GetContext(ctx, &n, "SELECT COUNT(*) FROM security_events"); err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return n, nil
}

func rowFrom(se *models.SecurityEvent) (*eventRow, error) {
	techniques, err := json.Marshal(orEmpty(se.MitreTechniques))
	if err != nil {
		return nil, err
	}
	actions, err := json.Marshal(orEmpty(se.RecommendedActions))
	if err != nil {
		return nil, err
	}
	var enrichment json.RawMessage
	if se.Enrichment != nil {
		if enrichment, err = json.Marshal(se.Enrichment); err != nil {
			return nil, err
		}
	}

	return &eventRow{
		ID:                 se.ID,
		UniqueID:           se.Event.UniqueID,
		TS:                 se.Event.Timestamp,
		Host:               se.Event.Host,
		Channel:            se.Event.Channel,
		EventID:            se.Event.EventID,
		Level:              se.Event.Level,
		Username:           se.Event.User,
		Message:            se.Event.Message,
		Raw:                se.Event.Raw,
		EventType:          string(se.EventType),
		RiskLevel:          string(se.RiskLevel),
		Confidence:         se.Confidence,
		Summary:            se.Summary,
		MitreTechniques:    techniques,
		RecommendedActions: actions,
		Enrichment:         enrichment,
		CorrelationScore:   se.CorrelationScore,
		BurstScore:         se.BurstScore,
		AnomalyScore:       se.AnomalyScore,
		IsDeterministic:    se.IsDeterministic,
		IsCorrelationBased: se.IsCorrelationBased,
		IsEnhanced:         se.IsEnhanced,
	}, nil
}

func (r *eventRow) toModel() (*models.SecurityEvent, error) {
	se := &models.SecurityEvent{
		ID: r.ID,
		Event: models.LogEvent{
			Timestamp: r.TS,
			Host:      r.Host,
			Channel:   r.Channel,
			EventID:   r.EventID,
			Level:     r.Level,
			User:      r.Username,
			Message:   r.Message,
			Raw:       r.Raw,
			UniqueID:  r.UniqueID,
		},
		EventType:          models.EventType(r.EventType),
		RiskLevel:          models.RiskLevel(r.RiskLevel),
		Confidence:         r.Confidence,
		Summary:            r.Summary,
		CorrelationScore:   r.CorrelationScore,
		BurstScore:         r.BurstScore,
		AnomalyScore:       r.AnomalyScore,
		IsDeterministic:    r.IsDeterministic,
		IsCorrelationBased: r.IsCorrelationBased,
		IsEnhanced:         r.IsEnhanced,
	}

	if err := json.Unmarshal(r.MitreTechniques, &se.MitreTechniques); err != nil {
		return nil, fmt.Errorf("failed to decode mitre_techniques for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.RecommendedActions, &se.RecommendedActions); err != nil {
		return nil, fmt.Errorf("failed to decode recommended_actions for %s: %w", r.ID, err)
	}
	if len(r.Enrichment) > 0 {
		se.Enrichment = &models.IPEnrichment{}
		if err := json.Unmarshal(r.Enrichment, se.Enrichment); err != nil {
			return nil, fmt.Errorf("failed to decode enrichment for %s: %w", r.ID, err)
		}
	}
	return se, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
