// Command seed loads the clinic catalog into an empty database: doctors,
// services, working schedules, and the administrator account. With -demo it
// also generates fake clients and appointments for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

type doctorSeed struct {
	name           string
	specialization string
	experience     int
	start, end     string
	daysOff        []int // 0 = Monday .. 6 = Sunday
}

var doctorSeeds = []doctorSeed{
	{name: "Aigerim Bekova", specialization: "Therapist", experience: 12, start: "09:00", end: "18:00", daysOff: []int{6}},
	{name: "Daniyar Seitkali", specialization: "Surgeon", experience: 8, start: "10:00", end: "18:00", daysOff: []int{5, 6}},
	{name: "Madina Omarova", specialization: "Orthodontist", experience: 15, start: "09:00", end: "15:00", daysOff: []int{6}},
}

type serviceSeed struct {
	name        string
	description string
	price       int
	minutes     int
}

var serviceSeeds = []serviceSeed{
	{name: "Consultation", description: "Initial examination and treatment plan", price: 5000, minutes: 30},
	{name: "Dental Cleaning", description: "Professional hygiene with ultrasound", price: 15000, minutes: 30},
	{name: "Caries Treatment", description: "Filling with photopolymer", price: 20000, minutes: 60},
	{name: "Tooth Extraction", description: "Simple extraction under local anesthesia", price: 25000, minutes: 60},
	{name: "Teeth Whitening", description: "In-office whitening", price: 45000, minutes: 90},
	{name: "Braces Consultation", description: "Orthodontic assessment with imaging", price: 8000, minutes: 30},
}

func main() {
	_ = godotenv.Load()

	demo := flag.Bool("demo", false, "also generate fake clients and appointments")
	flag.Parse()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	doctorIDs, err := seedDoctors(ctx, pool)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	serviceIDs, err := seedServices(ctx, pool)
	if err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedAdmin(ctx, pool); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	if *demo {
		if err := seedDemo(ctx, pool, doctorIDs, serviceIDs); err != nil {
			log.Fatalf("seed demo data: %v", err)
		}
	}

	fmt.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool) ([]int, error) {
	var ids []int
	for _, d := range doctorSeeds {
		var id int
		err := pool.QueryRow(ctx, `
			INSERT INTO doctors (name, specialization, experience_years)
			VALUES ($1, $2, $3)
			RETURNING id
		`, d.name, d.specialization, d.experience).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert doctor %s: %w", d.name, err)
		}
		ids = append(ids, id)

		off := make(map[int]bool)
		for _, day := range d.daysOff {
			off[day] = true
		}
		for day := 0; day < 7; day++ {
			if off[day] {
				continue
			}
			_, err := pool.Exec(ctx, `
				INSERT INTO doctor_schedules (doctor_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3::time, $4::time)
			`, id, day, d.start, d.end)
			if err != nil {
				return nil, fmt.Errorf("insert schedule for %s: %w", d.name, err)
			}
		}
	}
	return ids, nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]int, error) {
	var ids []int
	for _, s := range serviceSeeds {
		var id int
		err := pool.QueryRow(ctx, `
			INSERT INTO services (name, description, price, duration_minutes)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, s.name, s.description, s.price, s.minutes).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert service %s: %w", s.name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) error {
	phone := strings.TrimSpace(os.Getenv("ADMIN_PHONE"))
	if phone == "" {
		fmt.Println("ADMIN_PHONE not set, skipping admin account")
		return nil
	}
	_, err := pool.Exec(ctx, `
		INSERT INTO admin_users (phone, name)
		VALUES ($1, 'Administrator')
		ON CONFLICT (phone) DO NOTHING
	`, phone)
	return err
}

// seedDemo fills the next two weeks with plausible traffic.
func seedDemo(ctx context.Context, pool *pgxpool.Pool, doctorIDs, serviceIDs []int) error {
	gofakeit.Seed(42)

	slots := []string{"09:00", "09:30", "10:00", "11:00", "12:30", "14:00", "15:30", "16:00", "17:00"}
	for i := 0; i < 25; i++ {
		phone := "+7701" + gofakeit.DigitN(7)
		name := gofakeit.FirstName()
		if _, err := pool.Exec(ctx, `
			INSERT INTO clients (phone, name)
			VALUES ($1, $2)
			ON CONFLICT (phone) DO NOTHING
		`, phone, name); err != nil {
			return fmt.Errorf("insert client: %w", err)
		}

		date := time.Now().AddDate(0, 0, gofakeit.Number(1, 14)).Format("2006-01-02")
		slot := slots[gofakeit.Number(0, len(slots)-1)]
		doctorID := doctorIDs[gofakeit.Number(0, len(doctorIDs)-1)]
		serviceIdx := gofakeit.Number(0, len(serviceIDs)-1)

		_, err := pool.Exec(ctx, `
			INSERT INTO appointments (client_phone, doctor_id, service_id, date, time, duration_minutes, price)
			SELECT $1, $2, $3, $4::date, $5::time, $6, $7
			WHERE NOT EXISTS (
				SELECT 1 FROM appointments
				WHERE doctor_id = $2 AND date = $4::date AND time = $5::time AND status = 'scheduled'
			)
		`, phone, doctorID, serviceIDs[serviceIdx], date, slot,
			serviceSeeds[serviceIdx].minutes, serviceSeeds[serviceIdx].price)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
	}
	return nil
}
