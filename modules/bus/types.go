package bus

// ServicePing is the service other modules call to check the transport.
const ServicePing = "ping"

// PingRequest asks the bus module to ping its transport.
type PingRequest struct{}

// PingResponse reports which transport answered.
type PingResponse struct {
	Driver string `json:"driver"`
}
