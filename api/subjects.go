package api

// NATS subjects served by the sandbox service.
const (
	SubjectRun       = "sandbox.run"
	SubjectHealth    = "sandbox.health"
	SubjectLanguages = "sandbox.languages"
)
