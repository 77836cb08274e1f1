package zcl

// Foundation ZCL command IDs (global, not cluster-specific).
const (
	FoundationReadAttributes         uint8 = 0x00
	FoundationReadAttributesResponse uint8 = 0x01
	FoundationWriteAttributes        uint8 = 0x02
	FoundationWriteAttributesResp    uint8 = 0x04
	FoundationConfigReporting        uint8 = 0x06
	FoundationConfigReportingResp    uint8 = 0x07
	FoundationReportAttributes       uint8 = 0x0A
	FoundationDefaultResponse        uint8 = 0x0B
)

// ZCL status codes
const (
	ZCLStatusSuccess         uint8 = 0x00
	ZCLStatusFailure         uint8 = 0x01
	ZCLStatusUnsupportedAttr uint8 = 0x86
	ZCLStatusInvalidValue    uint8 = 0x87
	ZCLStatusReadOnly        uint8 = 0x88
	ZCLStatusInvalidDataType uint8 = 0x8D
)

// Frame control bits.
const (
	FrameTypeGlobal           uint8 = 0x00
	FrameTypeClusterSpecific  uint8 = 0x01
	FrameManufacturerSpecific uint8 = 0x04
	FrameServerToClient       uint8 = 0x08
	FrameDisableDefaultResp   uint8 = 0x10
)
