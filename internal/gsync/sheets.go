package gsync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

const sheetRange = "Appointments!A:J"

// Sheets mirrors appointments into one spreadsheet tab and writes admin
// report exports. A nil *Sheets is valid and no-ops, same as Calendar.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	log           *logging.Logger
}

// NewSheets builds the mirror. Returns nil when unconfigured.
func NewSheets(ctx context.Context, credentialsPath, spreadsheetID string, log *logging.Logger) (*Sheets, error) {
	if credentialsPath == "" || spreadsheetID == "" {
		return nil, nil
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("gsync: sheets service: %w", err)
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, log: log}, nil
}

// AddAppointment appends one row for a new booking.
func (s *Sheets) AddAppointment(ctx context.Context, a booking.Appointment) error {
	if s == nil {
		return nil
	}
	row := []any{
		strconv.Itoa(a.ID),
		a.Date,
		a.Time,
		displayName(a),
		a.ClientPhone,
		a.DoctorName,
		a.ServiceName,
		strconv.Itoa(a.Price),
		"active",
		time.Now().Format("02.01.2006 15:04"),
	}
	return s.append(ctx, [][]any{row})
}

// UpdateStatus appends a status-change row referencing the appointment id.
// Appending instead of editing keeps the sheet an audit trail rather than a
// live view.
func (s *Sheets) UpdateStatus(ctx context.Context, a booking.Appointment, status, detail string) error {
	if s == nil {
		return nil
	}
	row := []any{
		strconv.Itoa(a.ID),
		a.Date,
		a.Time,
		displayName(a),
		a.ClientPhone,
		a.DoctorName,
		a.ServiceName,
		strconv.Itoa(a.Price),
		status,
		detail,
	}
	return s.append(ctx, [][]any{row})
}

// ExportAppointments writes a titled report block listing appointments.
func (s *Sheets) ExportAppointments(ctx context.Context, appts []booking.Appointment, title string) error {
	if s == nil {
		return nil
	}
	rows := [][]any{
		{title, time.Now().Format("02.01.2006 15:04")},
		{},
		{"ID", "Date", "Time", "Patient", "Phone", "Doctor", "Service", "Price", "Status", "Created"},
	}
	for _, a := range appts {
		rows = append(rows, []any{
			strconv.Itoa(a.ID), a.Date, a.Time, displayName(a), a.ClientPhone,
			a.DoctorName, a.ServiceName, strconv.Itoa(a.Price), a.Status, "",
		})
	}
	rows = append(rows, []any{}, []any{"", "Total:", len(appts)})
	return s.append(ctx, rows)
}

// ExportMonthStats writes a monthly report block.
func (s *Sheets) ExportMonthStats(ctx context.Context, stats booking.MonthStats, label string) error {
	if s == nil {
		return nil
	}
	rows := [][]any{
		{"REPORT FOR " + label, time.Now().Format("02.01.2006 15:04")},
		{},
		{"Metric", "Value"},
		{"Total appointments", stats.Total},
		{"Completed", stats.Completed},
		{"Cancelled", stats.Cancelled},
		{"No-shows", stats.NoShow},
		{"Unique clients", stats.UniqueClients},
		{"Revenue", stats.Revenue},
	}
	return s.append(ctx, rows)
}

func (s *Sheets) append(ctx context.Context, rows [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, sheetRange, &sheets.ValueRange{
		Values: rows,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsync: append rows: %w", err)
	}
	return nil
}
