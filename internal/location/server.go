package location

import (
	"io"

	"github.com/google/uuid"

	"github.com/example/spacall/internal/booking/domain"
)

// Server implements the LocationServer interface.
type Server struct {
	observer *StreamObserver
}

// NewServer constructs a server.
func NewServer(observer *StreamObserver) *Server {
	return &Server{observer: observer}
}

// StreamLocation ingests provider positions until the client closes the
// stream. Malformed ids and out-of-range coordinates are skipped.
func (s *Server) StreamLocation(stream Location_StreamLocationServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		providerID, err := uuid.Parse(msg.ProviderId)
		if err != nil {
			continue
		}
		if msg.Lat < -90 || msg.Lat > 90 || msg.Lng < -180 || msg.Lng > 180 {
			continue
		}
		s.observer.Update(stream.Context(), providerID, domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng})
	}
}
