package interfaces

// Service is implemented by every interface exposed by the daemon to the
// outside: the operator API, the relay and the metrics endpoint.
type Service interface {
	Start() error
	Stop()
}
