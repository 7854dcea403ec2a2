package caresession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	consultationColumns = `c.id, c.appointment_id, c.room_id, c.meeting_url, c.status, a.appointment_time, c.created_at, c.updated_at`
	prescriptionColumns = `id, appointment_id, doctor_id, patient_id, pharmacy_id, medication, dosage, frequency, instructions, dispatch_status, created_at, updated_at`
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanConsultation(row pgx.Row) (*VideoConsultation, error) {
	var c VideoConsultation

	err := row.Scan(
		&c.ID,
		&c.AppointmentID,
		&c.RoomID,
		&c.MeetingURL,
		&c.Status,
		&c.ScheduledAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	c.ScheduledAt = c.ScheduledAt.UTC()
	return &c, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var pharmacyID *uuid.UUID

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.DoctorID,
		&p.PatientID,
		&pharmacyID,
		&p.Medication,
		&p.Dosage,
		&p.Frequency,
		&p.Instructions,
		&p.DispatchStatus,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}

	p.PharmacyID = pharmacyID
	return &p, nil
}

func (r *PgRepository) CreateConsultation(ctx context.Context, c *VideoConsultation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO video_consultations (id, appointment_id, room_id, meeting_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, c.ID, c.AppointmentID, c.RoomID, c.MeetingURL, c.Status)
	if err != nil {
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

func (r *PgRepository) GetConsultationByID(ctx context.Context, id uuid.UUID) (*VideoConsultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM video_consultations c
		JOIN appointments a ON a.id = c.appointment_id
		WHERE c.id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) GetConsultationByAppointment(ctx context.Context, appointmentID uuid.UUID) (*VideoConsultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM video_consultations c
		JOIN appointments a ON a.id = c.appointment_id
		WHERE c.appointment_id = $1
	`, appointmentID)
	return scanConsultation(row)
}

func (r *PgRepository) UpdateConsultationStatus(ctx context.Context, id uuid.UUID, from, to ConsultationStatus) (*VideoConsultation, error) {
	row := r.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE video_consultations
			SET status = $2,
			    updated_at = now()
			WHERE id = $1
			  AND status = $3
			RETURNING id, appointment_id, room_id, meeting_url, status, created_at, updated_at
		)
		SELECT c.id, c.appointment_id, c.room_id, c.meeting_url, c.status, a.appointment_time, c.created_at, c.updated_at
		FROM updated c
		JOIN appointments a ON a.id = c.appointment_id
	`, id, to, from)
	return scanConsultation(row)
}

func (r *PgRepository) SetConsultationRoom(ctx context.Context, id uuid.UUID, roomID, meetingURL string) (*VideoConsultation, error) {
	row := r.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE video_consultations
			SET room_id = $2,
			    meeting_url = $3,
			    updated_at = now()
			WHERE id = $1
			RETURNING id, appointment_id, room_id, meeting_url, status, created_at, updated_at
		)
		SELECT c.id, c.appointment_id, c.room_id, c.meeting_url, c.status, a.appointment_time, c.created_at, c.updated_at
		FROM updated c
		JOIN appointments a ON a.id = c.appointment_id
	`, id, roomID, meetingURL)
	return scanConsultation(row)
}

func (r *PgRepository) FindStaleSessions(ctx context.Context, cutoff time.Time) ([]VideoConsultation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM video_consultations c
		JOIN appointments a ON a.id = c.appointment_id
		WHERE c.status IN ('scheduled', 'in_progress')
		  AND a.appointment_time <= $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []VideoConsultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	return result, rows.Err()
}

func (r *PgRepository) CreatePrescription(ctx context.Context, p *Prescription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO prescriptions (id, appointment_id, doctor_id, patient_id, pharmacy_id, medication, dosage, frequency, instructions, dispatch_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`, p.ID, p.AppointmentID, p.DoctorID, p.PatientID, p.PharmacyID, p.Medication, p.Dosage, p.Frequency, p.Instructions, p.DispatchStatus)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPrescriptionByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE id = $1
	`, id)
	return scanPrescription(row)
}

func (r *PgRepository) UpdateDispatchStatus(ctx context.Context, id uuid.UUID, from, to DispatchStatus, pharmacyID *uuid.UUID) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE prescriptions
		SET dispatch_status = $2,
		    pharmacy_id = COALESCE($4, pharmacy_id),
		    updated_at = now()
		WHERE id = $1
		  AND dispatch_status = $3
		RETURNING `+prescriptionColumns+`
	`, id, to, from, pharmacyID)
	return scanPrescription(row)
}
