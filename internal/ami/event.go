package ami

import "fmt"

// Event is one parsed AMI event or action response, keyed by header name.
// Repeated headers keep the last value, which is all the manager
// interface needs here.
type Event map[string]string

// Type returns the AMI event type, empty for responses.
func (e Event) Type() string {
	return e["Event"]
}

// Get returns the value for the given header, or empty string.
func (e Event) Get(key string) string {
	return e[key]
}

// IsResponse reports whether this block answers an action rather than
// describing channel activity.
func (e Event) IsResponse() bool {
	return e["Response"] != ""
}

// Success reports whether a response block indicates success.
func (e Event) Success() bool {
	return e["Response"] == "Success"
}

// marshalAction encodes an action block from alternating key-value pairs.
// Field order is preserved; Asterisk requires Action first.
func marshalAction(name string, fields ...string) []byte {
	out := fmt.Appendf(nil, "Action: %s\r\n", name)
	for i := 0; i+1 < len(fields); i += 2 {
		out = fmt.Appendf(out, "%s: %s\r\n", fields[i], fields[i+1])
	}
	return append(out, '\r', '\n')
}
