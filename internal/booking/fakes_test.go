package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository that enforces the same uniqueness rules
// as the appointments table: one live appointment per (doctor, date, start)
// and one per payment_ref. Safe for concurrent use so reconciliation races can
// be exercised directly.
type fakeRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	appointments []*Appointment
	events       []EventLog

	markNotifiedErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		doctors:  make(map[uuid.UUID]*Doctor),
		patients: make(map[uuid.UUID]*Patient),
	}
}

func (f *fakeRepo) addDoctor(d *Doctor) *Doctor {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doctors[d.ID] = d
	return d
}

func (f *fakeRepo) addPatient(p *Patient) *Patient {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patients[p.ID] = p
	return p
}

func (f *fakeRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	copied := *d
	return &copied, nil
}

func (f *fakeRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeRepo) ListBookedStartTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	booked := make(map[string]bool)
	for _, a := range f.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(TruncateToDate(date)) && a.Status != StatusCancelled {
			booked[a.StartTime] = true
		}
	}
	return booked, nil
}

func (f *fakeRepo) GetActiveAppointment(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findActiveLocked(doctorID, date, startTime)
}

func (f *fakeRepo) findActiveLocked(doctorID uuid.UUID, date time.Time, startTime string) (*Appointment, error) {
	for _, a := range f.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(TruncateToDate(date)) && a.StartTime == startTime && a.Status != StatusCancelled {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) GetAppointmentByPaymentRef(ctx context.Context, ref string) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findByRefLocked(ref)
}

func (f *fakeRepo) findByRefLocked(ref string) (*Appointment, error) {
	for _, a := range f.appointments {
		if a.PaymentRef == ref && ref != "" {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) CreateConfirmed(ctx context.Context, appt *Appointment) (*Appointment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, err := f.findByRefLocked(appt.PaymentRef); err == nil {
		return existing, false, nil
	}
	if existing, err := f.findActiveLocked(appt.DoctorID, appt.Date, appt.StartTime); err == nil {
		return existing, false, nil
	}

	stored := *appt
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Date = TruncateToDate(stored.Date)
	stored.Status = StatusConfirmed
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.appointments = append(f.appointments, &stored)

	copied := stored
	return &copied, true, nil
}

func (f *fakeRepo) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appointments {
		if filter.DoctorID != uuid.Nil && a.DoctorID != filter.DoctorID {
			continue
		}
		if filter.PatientID != uuid.Nil && a.PatientID != filter.PatientID {
			continue
		}
		if !filter.Date.IsZero() && !a.Date.Equal(TruncateToDate(filter.Date)) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRepo) FindUnnotified(ctx context.Context, limit int) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appointments {
		if a.Status == StatusConfirmed && !a.Notified {
			out = append(out, *a)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkNotified(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markNotifiedErr != nil {
		return f.markNotifiedErr
	}
	for _, a := range f.appointments {
		if a.ID == id {
			a.Notified = true
			return nil
		}
	}
	return ErrAppointmentNotFound
}

func (f *fakeRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRepo) countAppointments() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appointments)
}

// fakeNotifier records confirmations and can be told to fail.
type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *fakeNotifier) AppointmentConfirmed(ctx context.Context, appt *Appointment, doctor *Doctor, patient *Patient) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}
