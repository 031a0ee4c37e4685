// Package events is the workspace activity log: logins, DVR status changes
// and wizard confirmations, with the data source that served them.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeLogin         = "auth.login"
	TypeLogout        = "auth.logout"
	TypeDVRStatus     = "dvr.status"
	TypeDVRRevision   = "dvr.revision"
	TypeWizardConfirm = "wizard.confirm"
	TypeRiskImport    = "risk.import"
)

type Payload map[string]any

type Event struct {
	ID       int64   `json:"id"`
	TS       string  `json:"ts"`
	Type     string  `json:"type"`
	Entity   string  `json:"entity"`
	EntityID int64   `json:"entity_id,omitempty"`
	Actor    string  `json:"actor"`
	Source   string  `json:"source,omitempty"`
	Payload  Payload `json:"payload,omitempty"`
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append records one event. A zero EntityID and an empty Source are stored
// as NULL.
func (w Writer) Append(ctx context.Context, e Event) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity,entity_id,actor,source,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, e.Entity, nullableID(e.EntityID), e.Actor, nullable(e.Source), string(data))
	return err
}

// Latest returns up to n events, newest first, optionally of one type.
func (w Writer) Latest(ctx context.Context, n int, evtType string) ([]Event, error) {
	if n <= 0 {
		n = 20
	}
	q := `SELECT id,ts,type,entity,entity_id,actor,source,payload_json FROM events`
	args := []any{}
	if evtType != "" {
		q += ` WHERE type=?`
		args = append(args, evtType)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := w.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			e        Event
			entityID sql.NullInt64
			source   sql.NullString
			payload  string
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Entity, &entityID, &e.Actor, &source, &payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.Int64
		e.Source = source.String
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
