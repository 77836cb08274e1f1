package zcl

import (
	"testing"
)

func TestParseReport(t *testing.T) {
	// attr 0x0002 bitmap16 0x0005, attr 0x0010 uint32 45000
	data := []byte{
		0x02, 0x00, TypeBitmap16, 0x05, 0x00,
		0x10, 0x00, TypeUint32, 0xC8, 0xAF, 0x00, 0x00,
	}
	recs, err := ParseReport(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].ID != 0x0002 || recs[0].Value.(uint16) != 5 {
		t.Errorf("rec[0] = %+v", recs[0])
	}
	if recs[1].ID != 0x0010 || recs[1].Value.(uint32) != 45000 {
		t.Errorf("rec[1] = %+v", recs[1])
	}
}

func TestParseReportTruncatedKeepsPrefix(t *testing.T) {
	data := []byte{
		0x00, 0x00, TypeUint8, 0x10,
		0x03, 0x00, TypeUint16, 0x01, // missing one value byte
	}
	recs, err := ParseReport(data)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(recs) != 1 || recs[0].Value.(uint8) != 0x10 {
		t.Errorf("recs = %+v, want the first record only", recs)
	}
}

func TestParseReadResponse(t *testing.T) {
	data := []byte{
		0x00, 0x00, ZCLStatusSuccess, TypeUint8, 0x20,
		0x00, 0x01, ZCLStatusUnsupportedAttr,
		0x03, 0x00, ZCLStatusSuccess, TypeUint8, 0x06,
	}
	recs, err := ParseReadResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Value.(uint8) != 32 {
		t.Errorf("rec[0] value = %v, want 32", recs[0].Value)
	}
	if recs[1].ID != 0x0100 || recs[1].Status != ZCLStatusUnsupportedAttr || recs[1].Value != nil {
		t.Errorf("rec[1] = %+v, want unsupported with nil value", recs[1])
	}
	if recs[2].ID != 0x0003 || recs[2].Value.(uint8) != 6 {
		t.Errorf("rec[2] = %+v", recs[2])
	}
}

func TestParseAttributeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		wantMfr uint16
		wantErr bool
		wantLen int
	}{
		{
			name:    "plain report",
			frame:   []byte{FrameServerToClient, 0x01, FoundationReportAttributes, 0x00, 0x00, TypeBool, 0x01},
			wantLen: 1,
		},
		{
			name: "manufacturer specific read response",
			frame: []byte{
				FrameServerToClient | FrameManufacturerSpecific, 0x3B, 0x14, 0x07, FoundationReadAttributesResponse,
				0x02, 0x01, ZCLStatusSuccess, TypeBitmap16, 0x01, 0x00,
			},
			wantMfr: 0x143B,
			wantLen: 1,
		},
		{
			name:    "cluster specific",
			frame:   []byte{FrameTypeClusterSpecific, 0x01, 0x00},
			wantErr: true,
		},
		{
			name:    "default response",
			frame:   []byte{0x00, 0x01, FoundationDefaultResponse, 0x00, 0x00},
			wantErr: true,
		},
		{
			name:    "short",
			frame:   []byte{0x00, 0x01},
			wantErr: true,
		},
		{
			name:    "short manufacturer header",
			frame:   []byte{FrameManufacturerSpecific, 0x3B, 0x14},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, recs, err := ParseAttributeFrame(tt.frame)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if h.ManufacturerCode != tt.wantMfr {
				t.Errorf("manufacturer = 0x%04X, want 0x%04X", h.ManufacturerCode, tt.wantMfr)
			}
			if len(recs) != tt.wantLen {
				t.Errorf("got %d records, want %d", len(recs), tt.wantLen)
			}
		})
	}
}
