package types

// -----------------------------------------------------------------------------
// Computation agent API

// SubmitResponse is returned by POST /session
type SubmitResponse struct {
	SessionID string `json:"session_id"`
	CircuitID string `json:"circuit_id"`
	State     string `json:"state"`
}

// StatusResponse is returned by GET /session/:id/status
type StatusResponse struct {
	SessionID string `json:"session_id"`
	CircuitID string `json:"circuit_id"`
	State     string `json:"state"`
}

// ResultResponse is returned by GET /session/:id/result
type ResultResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Output    []byte `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PoolStatusResponse is returned by GET /status
type PoolStatusResponse struct {
	Capacity int `json:"capacity"`
	Occupied int `json:"occupied"`
	Sessions int `json:"sessions"`
}

// -----------------------------------------------------------------------------
// Encryption agent API

// DistributeRequest asks an encryption agent to fetch a data object, split
// it and send one share to every computation agent of the registry
type DistributeRequest struct {
	CircuitID string `json:"circuit_id"`
	DataURI   string `json:"data_uri"`
}

// DeliveryOutcome is the per-agent result of one distribution
type DeliveryOutcome struct {
	Agent      string `json:"agent"`
	PartyIndex int    `json:"party_index"`
	SessionID  string `json:"session_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DistributeResponse is returned by POST /distribute
type DistributeResponse struct {
	RequestID  string            `json:"request_id"`
	CircuitID  string            `json:"circuit_id"`
	Complete   bool              `json:"complete"`
	Deliveries []DeliveryOutcome `json:"deliveries"`
}
