package registry

// Service is the interface for every background service the tracker hosts.
type Service interface {
	Start() error
	Stop() error
}
