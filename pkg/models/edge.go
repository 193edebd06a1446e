package models

// Edge connects a source node's output port to a target node's input port.
// Port references use the form "{node_id}:{port_name}".
type Edge struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"`
	TargetPort string `json:"target_port" validate:"required"`
}

// SourceNode returns the node id on the source side of the edge.
func (e *Edge) SourceNode() string {
	nodeID, _, _ := ParsePortID(e.SourcePort)

	return nodeID
}

// TargetNode returns the node id on the target side of the edge.
func (e *Edge) TargetNode() string {
	nodeID, _, _ := ParsePortID(e.TargetPort)

	return nodeID
}

// ParsePortID parses a port ID in format "{node_id}:{port_name}" into components.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}
