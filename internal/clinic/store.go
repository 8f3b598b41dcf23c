package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store retrieves clinic reference data. Reference data is read concurrently
// and assumed not mutated mid-request.
type Store interface {
	Doctors(ctx context.Context) ([]Doctor, error)
	Services(ctx context.Context) ([]Service, error)
	SchedulesForWeekday(ctx context.Context, weekday int) (map[int]Schedule, error)
	AbsentDoctorIDs(ctx context.Context, date time.Time) (map[int]bool, error)
}

// PgStore is the pgx-backed Store implementation.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("clinic: pgx pool required")
	}
	return &PgStore{pool: pool}
}

var _ Store = (*PgStore)(nil)

func (s *PgStore) Doctors(ctx context.Context) ([]Doctor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, specialization, COALESCE(experience_years, 0), is_active
		FROM doctors
		WHERE is_active = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("clinic: list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialization, &d.ExperienceYrs, &d.IsActive); err != nil {
			return nil, fmt.Errorf("clinic: scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

func (s *PgStore) Services(ctx context.Context) ([]Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), price, duration_minutes, is_active
		FROM services
		WHERE is_active = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("clinic: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Price, &svc.DurationMinutes, &svc.IsActive); err != nil {
			return nil, fmt.Errorf("clinic: scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// SchedulesForWeekday returns individual doctor schedules keyed by doctor id.
func (s *PgStore) SchedulesForWeekday(ctx context.Context, weekday int) (map[int]Schedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doctor_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM doctor_schedules
		WHERE day_of_week = $1 AND is_active = TRUE
	`, weekday)
	if err != nil {
		return nil, fmt.Errorf("clinic: list schedules: %w", err)
	}
	defer rows.Close()

	schedules := make(map[int]Schedule)
	for rows.Next() {
		var sch Schedule
		if err := rows.Scan(&sch.DoctorID, &sch.Weekday, &sch.Start, &sch.End); err != nil {
			return nil, fmt.Errorf("clinic: scan schedule: %w", err)
		}
		schedules[sch.DoctorID] = sch
	}
	return schedules, rows.Err()
}

func (s *PgStore) AbsentDoctorIDs(ctx context.Context, date time.Time) (map[int]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT doctor_id FROM doctor_absences
		WHERE start_date <= $1 AND end_date >= $1
	`, date)
	if err != nil {
		if err == pgx.ErrNoRows {
			return map[int]bool{}, nil
		}
		return nil, fmt.Errorf("clinic: list absences: %w", err)
	}
	defer rows.Close()

	absent := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("clinic: scan absence: %w", err)
		}
		absent[id] = true
	}
	return absent, rows.Err()
}
