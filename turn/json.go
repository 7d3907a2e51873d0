package turn

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type TurnJSON struct {
	Speaker   Speaker         `json:"speaker"`
	Index     int             `json:"index"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func TurnToJSON(t Turn) (*TurnJSON, error) {
	var data any
	switch v := t.(type) {
	case *InstructorTurn:
		u := UserIntent{Intent: string(v.intent)}
		if v.utterance != "" {
			utterance := v.utterance
			u.Utterance = &utterance
		}
		data = u
	case *ActionTurn:
		data = v.prev
	default:
		return nil, errors.Errorf("unknown turn type: %T", t)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "encode turn")
	}
	return &TurnJSON{
		Speaker:   t.Speaker(),
		Index:     t.Index(),
		Timestamp: t.Timestamp(),
		Data:      encoded,
	}, nil
}

func JSONToTurn(item *TurnJSON) (Turn, error) {
	switch item.Speaker {
	case SpeakerInstructor:
		var u UserIntent
		if err := json.Unmarshal(item.Data, &u); err != nil {
			return nil, errors.Wrap(err, "decode instructor turn")
		}
		return NewInstructorTurn(u, item.Index, item.Timestamp), nil
	case SpeakerNavigator:
		var p PrevTurn
		if err := json.Unmarshal(item.Data, &p); err != nil {
			return nil, errors.Wrap(err, "decode navigator turn")
		}
		return NewActionTurn(p, item.Index, item.Timestamp), nil
	default:
		return nil, errors.Errorf("unknown turn speaker: %s", item.Speaker)
	}
}
