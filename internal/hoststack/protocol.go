package hoststack

import (
	"bytes"
	"encoding/json"
	"fmt"

	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/zcl"
)

// Inbound message types.
const (
	TypeAttributeReport = "attribute_report"
	TypeReadResponse    = "read_response"
	TypeDeviceAnnounce  = "device_announce"
	TypeAck             = "ack"
)

// Inbound is one JSON message from the host stack.
type Inbound struct {
	Type string `json:"type"`

	// ack
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`

	// attribute_report, read_response
	IEEE       string      `json:"ieee,omitempty"`
	Endpoint   uint8       `json:"endpoint,omitempty"`
	Cluster    uint16      `json:"cluster,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Frame      []byte      `json:"frame,omitempty"` // raw ZCL frame, base64 on the wire

	// device_announce
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	SWBuildID    string `json:"sw_build_id,omitempty"`
}

// Attribute is one decoded attribute value. Either ID or Name identifies it.
type Attribute struct {
	ID    *uint16 `json:"id,omitempty"`
	Name  string  `json:"name,omitempty"`
	Value any     `json:"value"`
}

// ParseInbound decodes a host stack message. Numbers are kept as json.Number.
func ParseInbound(data []byte) (Inbound, error) {
	var in Inbound
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("hoststack: decode message: %w", err)
	}
	if in.Type == "" {
		return in, fmt.Errorf("hoststack: message without type")
	}
	return in, nil
}

// Message converts an attribute message into codec input. A raw frame takes
// precedence over the attribute list. Records decoded before a frame error
// are returned alongside it.
func (in Inbound) Message() (codec.Message, error) {
	msg := codec.Message{Cluster: in.Cluster, Kind: codec.MessageKind(in.Type)}
	if len(in.Frame) == 0 {
		for _, a := range in.Attributes {
			av := codec.AttributeValue{Name: a.Name, Value: a.Value}
			if a.ID != nil {
				av.ID = *a.ID
			} else if a.Name == "" {
				continue
			}
			msg.Attributes = append(msg.Attributes, av)
		}
		return msg, nil
	}

	h, recs, err := zcl.ParseAttributeFrame(in.Frame)
	switch h.CommandID {
	case zcl.FoundationReportAttributes:
		msg.Kind = codec.KindAttributeReport
	case zcl.FoundationReadAttributesResponse:
		msg.Kind = codec.KindReadResponse
	}
	for _, r := range recs {
		if r.Status != zcl.ZCLStatusSuccess {
			continue
		}
		msg.Attributes = append(msg.Attributes, codec.AttributeValue{ID: r.ID, Value: r.Value})
	}
	if err != nil {
		return msg, fmt.Errorf("hoststack: frame for cluster 0x%04X: %w", in.Cluster, err)
	}
	return msg, nil
}

// Request is one outbound operation addressed to a device.
type Request struct {
	Type             codec.OperationKind     `json:"type"`
	ID               string                  `json:"id"`
	IEEE             string                  `json:"ieee"`
	Endpoint         uint8                   `json:"endpoint"`
	Cluster          uint16                  `json:"cluster"`
	ManufacturerCode uint16                  `json:"manufacturer_code,omitempty"`
	Attributes       []uint16                `json:"attributes,omitempty"`
	Writes           []Write                 `json:"writes,omitempty"`
	Command          *Command                `json:"command,omitempty"`
	Reporting        []schema.ReportingEntry `json:"reporting,omitempty"`
}

// Write is one attribute write with its ZCL encoded value.
type Write struct {
	ID    uint16 `json:"id"`
	Type  uint8  `json:"type"`
	Value any    `json:"value"`
	Data  []byte `json:"data"`
}

// Command is a cluster command with its ZCL encoded payload.
type Command struct {
	Name    string         `json:"name"`
	ID      uint8          `json:"id"`
	Params  map[string]any `json:"params,omitempty"`
	Payload []byte         `json:"payload"`
}

// NewRequest builds the wire form of an operation.
func NewRequest(id, ieee string, op codec.Operation) Request {
	req := Request{
		Type:             op.Kind,
		ID:               id,
		IEEE:             ieee,
		Endpoint:         op.Endpoint,
		Cluster:          op.Cluster,
		ManufacturerCode: op.ManufacturerCode,
		Attributes:       op.Attributes,
		Reporting:        op.Reporting,
	}
	for _, w := range op.Writes {
		req.Writes = append(req.Writes, Write{ID: w.ID, Type: w.Type, Value: w.Value, Data: w.Data})
	}
	if op.Command != nil {
		req.Command = &Command{
			Name:    op.Command.Name,
			ID:      op.Command.ID,
			Params:  op.Command.Params,
			Payload: op.Command.Payload,
		}
	}
	return req
}
