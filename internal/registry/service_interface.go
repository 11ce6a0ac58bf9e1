package registry

// Service is the interface for the monitor's long-running services.
type Service interface {
	Start() error
	Stop() error
}
