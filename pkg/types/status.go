package types

// NodeStatus is the self-reported state of a shard node, served on the
// status endpoint and polled by coordinators and split orchestrators
type NodeStatus struct {
	NodeID           string `json:"nodeId"`
	Role             string `json:"role"`
	ActiveOperations int    `json:"activeOperations"`
	LastEventID      string `json:"lastEventId,omitempty"`
	Paused           bool   `json:"paused"`
	Tripped          bool   `json:"tripped"`
	RoutingOn        bool   `json:"routingOn,omitempty"`
}
