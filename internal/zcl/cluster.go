package zcl

// Access flags
const (
	AccessRead   uint8 = 0x01
	AccessWrite  uint8 = 0x02
	AccessReport uint8 = 0x04
)

// AttributeDef defines a ZCL attribute.
type AttributeDef struct {
	ID     uint16 `json:"id"`
	Name   string `json:"name"`
	Type   uint8  `json:"type"`
	Access uint8  `json:"access"` // bitmask: 1=read, 2=write, 4=reportable
}

// IsReadable returns true if the attribute can be read.
func (a AttributeDef) IsReadable() bool {
	return a.Access&AccessRead != 0
}

// IsReportable returns true if the attribute supports reporting.
func (a AttributeDef) IsReportable() bool {
	return a.Access&AccessReport != 0
}

// CommandDef defines a cluster-specific client-to-server command.
type CommandDef struct {
	ID   uint8  `json:"id"`
	Name string `json:"name"`
}

// ClusterDef defines a ZCL cluster with its attributes and commands.
type ClusterDef struct {
	ID         uint16         `json:"id"`
	Name       string         `json:"name"`
	Attributes []AttributeDef `json:"attributes,omitempty"`
	Commands   []CommandDef   `json:"commands,omitempty"`
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id uint16) (AttributeDef, bool) {
	for _, a := range c.Attributes {
		if a.ID == id {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// FindAttributeByName looks up an attribute by its herdsman-style name.
func (c *ClusterDef) FindAttributeByName(name string) (AttributeDef, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// FindCommand looks up a command by name.
func (c *ClusterDef) FindCommand(name string) (CommandDef, bool) {
	for _, cmd := range c.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return CommandDef{}, false
}
