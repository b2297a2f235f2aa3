package rollup

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome of a request, reported to the rollup server on the
// next /finish call.
type Status uint8

const (
	StatusAccept Status = iota
	StatusReject
)

func (s Status) String() string {
	switch s {
	case StatusAccept:
		return "accept"
	case StatusReject:
		return "reject"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(s))
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s != StatusAccept && s != StatusReject {
		return nil, fmt.Errorf("cannot encode invalid status %d", uint8(s))
	}
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "accept":
		*s = StatusAccept
	case "reject":
		*s = StatusReject
	default:
		return fmt.Errorf("unknown status %q", str)
	}
	return nil
}
