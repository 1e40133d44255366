package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/geopresence/internal/client/models"
)

type AttendanceService interface {
	List(ctx context.Context) ([]models.AttendanceRecord, error)
}

// caller performs authorized requests; *session.Manager implements it with
// one refresh-and-retry on 401.
type caller interface {
	Call(ctx context.Context, method, path string, in, out any) error
}

type attendanceService struct {
	api caller
}

func NewAttendanceService(api caller) AttendanceService {
	return &attendanceService{api: api}
}

func (s *attendanceService) List(ctx context.Context) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	if err := s.api.Call(ctx, http.MethodGet, "/attendance", nil, &records); err != nil {
		return nil, fmt.Errorf("attendance: %w", err)
	}
	return records, nil
}
