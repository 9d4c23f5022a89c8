package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Audit actions.
const (
	ActionCreated      = "created"
	ActionUpdated      = "updated"
	ActionStateChanged = "state-changed"
)

// Writer appends to the audit log. Entries are immutable; there is no
// update or delete path anywhere in the module.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Changes is the snapshot of fields an action touched.
type Changes map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, action, entityKind, entityID, actorID string, changes Changes) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if changes == nil {
		changes = Changes{}
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_log(ts,action,entity_kind,entity_id,actor_id,changes_json) VALUES (?,?,?,?,?,?)`,
		ts, action, entityKind, entityID, actorID, string(data))
	return err
}
