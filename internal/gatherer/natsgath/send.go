package natsgath

import (
	"encoding/json"
)

func (s *natsGatherer) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal stream message", "error", err)
		return
	}

	if err := s.nc.Publish(s.inbox, b); err != nil {
		s.logger.Warn("failed to publish stream message", "inbox", s.inbox, "error", err)
	}
}
