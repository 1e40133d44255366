package models

// AttendanceRecord is one row of the attendance listing.
type AttendanceRecord struct {
	SessionID int64  `json:"session_id"`
	Student   string `json:"student"`
	Status    string `json:"status"`
}
