package download

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a status tag or label is not recognized.
var ErrUnknownStatus = errors.New("unknown download status")

// StatusKind is the tag of a Status.
type StatusKind string

const (
	StatusWaiting   StatusKind = "Waiting"
	StatusActive    StatusKind = "Active"
	StatusPaused    StatusKind = "Paused"
	StatusCompleted StatusKind = "Completed"
	StatusFailed    StatusKind = "Failed"
	StatusCancelled StatusKind = "Cancelled"
)

var unitKinds = map[StatusKind]bool{
	StatusWaiting:   true,
	StatusActive:    true,
	StatusPaused:    true,
	StatusCompleted: true,
	StatusCancelled: true,
}

// Status is the lifecycle state of a task. Reason is only set for failed tasks.
//
// The JSON form is externally tagged: unit kinds encode as a JSON string ("Waiting"),
// failures as an object ({"Failed":"reason"}). The store compares this form byte for byte.
type Status struct {
	Kind   StatusKind
	Reason string
}

func Waiting() Status   { return Status{Kind: StatusWaiting} }
func Active() Status    { return Status{Kind: StatusActive} }
func Paused() Status    { return Status{Kind: StatusPaused} }
func Completed() Status { return Status{Kind: StatusCompleted} }
func Cancelled() Status { return Status{Kind: StatusCancelled} }

// Failed returns a failed status carrying reason.
func Failed(reason string) Status {
	return Status{Kind: StatusFailed, Reason: reason}
}

// String returns the human readable label.
func (s Status) String() string {
	if s.Kind == StatusFailed {
		return fmt.Sprintf("%s: %s", s.Kind, s.Reason)
	}
	return string(s.Kind)
}

// IsFinished reports whether the task reached a terminal state.
func (s Status) IsFinished() bool {
	switch s.Kind {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.Kind == StatusFailed {
		return json.Marshal(map[StatusKind]string{StatusFailed: s.Reason})
	}
	if !unitKinds[s.Kind] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, s.Kind)
	}
	return json.Marshal(string(s.Kind))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrUnknownStatus)
	}

	switch data[0] {
	case '"':
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}
		kind := StatusKind(tag)
		if !unitKinds[kind] {
			return fmt.Errorf("%w: %q", ErrUnknownStatus, tag)
		}
		*s = Status{Kind: kind}
		return nil
	case '{':
		var tagged map[string]string
		if err := json.Unmarshal(data, &tagged); err != nil {
			return fmt.Errorf("%w: %w", ErrUnknownStatus, err)
		}
		reason, ok := tagged[string(StatusFailed)]
		if !ok || len(tagged) != 1 {
			return fmt.Errorf("%w: %s", ErrUnknownStatus, data)
		}
		*s = Failed(reason)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStatus, data)
	}
}

// EncodeStatus returns the stored text form of s.
func EncodeStatus(s Status) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeStatus parses the stored text form produced by EncodeStatus.
func DecodeStatus(text string) (Status, error) {
	var s Status
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			return Status{}, err
		}
		return Status{}, fmt.Errorf("%w: %w", ErrUnknownStatus, err)
	}
	return s, nil
}

// ParseStatus parses a user supplied label such as "active" or "failed:disk full".
// Labels are case-insensitive; the failure reason is kept verbatim.
func ParseStatus(label string) (Status, error) {
	name, reason, hasReason := strings.Cut(strings.TrimSpace(label), ":")
	name = strings.TrimSpace(name)

	if strings.EqualFold(name, string(StatusFailed)) {
		return Failed(strings.TrimSpace(reason)), nil
	}
	if hasReason {
		return Status{}, fmt.Errorf("%w: %q takes no reason", ErrUnknownStatus, name)
	}
	for kind := range unitKinds {
		if strings.EqualFold(name, string(kind)) {
			return Status{Kind: kind}, nil
		}
	}
	return Status{}, fmt.Errorf("%w: %q", ErrUnknownStatus, label)
}
