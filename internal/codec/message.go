package codec

// MessageKind distinguishes unsolicited reports from answers to reads.
// Both decode identically.
type MessageKind string

const (
	KindAttributeReport MessageKind = "attribute_report"
	KindReadResponse    MessageKind = "read_response"
)

// AttributeValue is one attribute carried by an inbound message. When Name is
// set the attribute is resolved by name, otherwise by numeric ID.
type AttributeValue struct {
	ID    uint16
	Name  string
	Value any
}

// Ident returns a printable identifier for logs and results.
func (a AttributeValue) Ident() string {
	if a.Name != "" {
		return a.Name
	}
	return hexID(a.ID)
}

// Message is one inbound attribute message for a single cluster.
type Message struct {
	Cluster    uint16
	Kind       MessageKind
	Attributes []AttributeValue
}
