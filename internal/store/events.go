package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendEventTx records a progress or citation event inside the same
// transaction as the results it describes, so listeners replaying the
// log never observe phantom completions.
func (r Repo) AppendEventTx(ctx context.Context, tx *sql.Tx, evtType, batchID, citationID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,batch_id,citation_id,payload_json) VALUES (?,?,?,?,?)`,
		encodeTime(time.Now()), evtType, nullable(batchID), nullable(citationID), string(data))
	return err
}
