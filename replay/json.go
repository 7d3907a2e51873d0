package replay

import (
	"encoding/json"

	"github.com/pkg/errors"

	"webnavigator/turn"
)

type replayJSON struct {
	SessionID string           `json:"session_id"`
	Turns     []*turn.TurnJSON `json:"turns"`
}

func (r *Replay) MarshalJSON() ([]byte, error) {
	items := make([]*turn.TurnJSON, 0, r.committed)
	for _, t := range r.log[:r.committed] {
		item, err := turn.TurnToJSON(t)
		if err != nil {
			return nil, errors.Wrapf(err, "encode turn %d", t.Index())
		}
		items = append(items, item)
	}
	return json.Marshal(replayJSON{SessionID: r.sessionID, Turns: items})
}

// Unmarshal decodes a replay written by MarshalJSON. Indices are reassigned
// in log order.
func Unmarshal(data []byte) (*Replay, error) {
	var raw replayJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode replay")
	}
	r := New(raw.SessionID, nil)
	for i, item := range raw.Turns {
		if item == nil {
			return nil, errors.Errorf("turn %d is null", i)
		}
		t, err := turn.JSONToTurn(item)
		if err != nil {
			return nil, errors.Wrapf(err, "decode turn %d", i)
		}
		r.Append(t)
	}
	return r, nil
}
