package schedule

import "strings"

// GroupNotFoundError reports that a requested group is not among a
// sheet's column headers. The resolver treats it as "not this sheet" and
// moves on; it is never shown to users directly.
type GroupNotFoundError struct {
	Group     string
	Sheet     string
	Available []string
}

func (e *GroupNotFoundError) Error() string {
	return "group " + e.Group + " not found in sheet " + e.Sheet +
		" (available: " + strings.Join(e.Available, ", ") + ")"
}

// ParseError marks a malformed workbook or an unexpected sheet layout.
// It is local to one file/sheet: the resolver logs it and skips on.
type ParseError struct {
	Sheet string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Sheet != "" {
		return "parse sheet " + e.Sheet + ": " + e.Err.Error()
	}
	return "parse workbook: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// DeliveryError reports that a notification could not be delivered to a
// subscriber (typically: the subscriber blocked the bot). The monitor
// responds by dropping the subscriber, never by aborting the broadcast.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return "deliver to chat: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }
