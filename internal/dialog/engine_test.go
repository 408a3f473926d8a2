package dialog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/appointmentbot/internal/registry"
	"github.com/clinicdesk/appointmentbot/pkg/logging"
)

// fakeGateway serves canned registry data and records mutations. When err is
// set every method fails with it.
type fakeGateway struct {
	err error

	clinics      []registry.Clinic
	findClinics  map[string][]registry.Clinic
	specialities []string
	doctors      []registry.Doctor
	timeSlots    map[string][]string // keyed by date
	appointments []registry.Appointment

	created   []registry.CreateAppointmentRequest
	updated   map[int]registry.UpdateAppointmentRequest
	cancelled []int
}

func (f *fakeGateway) ListClinics(ctx context.Context) ([]registry.Clinic, error) {
	return f.clinics, f.err
}

func (f *fakeGateway) FindClinicsByName(ctx context.Context, name string) ([]registry.Clinic, error) {
	return f.findClinics[name], f.err
}

func (f *fakeGateway) GetClinic(ctx context.Context, clinicID int) (*registry.Clinic, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.clinics {
		if f.clinics[i].ID == clinicID {
			return &f.clinics[i], nil
		}
	}
	return nil, registry.ErrNotFound
}

func (f *fakeGateway) ListSpecialities(ctx context.Context, filter registry.DoctorFilter) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if filter.Speciality == "" {
		return f.specialities, nil
	}
	var out []string
	for _, s := range f.specialities {
		if strings.EqualFold(s, filter.Speciality) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeGateway) ListDoctors(ctx context.Context, filter registry.DoctorFilter) ([]registry.Doctor, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []registry.Doctor
	for _, d := range f.doctors {
		if filter.Speciality != "" && !strings.EqualFold(d.Speciality, filter.Speciality) {
			continue
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(filter.Name)) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeGateway) GetDoctor(ctx context.Context, doctorID int) (*registry.Doctor, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.doctors {
		if f.doctors[i].ID == doctorID {
			return &f.doctors[i], nil
		}
	}
	return nil, registry.ErrNotFound
}

func (f *fakeGateway) DoctorTimeSlots(ctx context.Context, doctorID int, date string) ([]string, error) {
	return f.timeSlots[date], f.err
}

func (f *fakeGateway) UserAppointments(ctx context.Context, patientUUID string) ([]registry.Appointment, error) {
	return f.appointments, f.err
}

func (f *fakeGateway) CreateAppointment(ctx context.Context, req registry.CreateAppointmentRequest) (*registry.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	at, _ := time.ParseInLocation("2006-01-02T15:04:05", req.AppointmentTime, time.Local)
	return &registry.Appointment{
		ID:              101,
		DoctorID:        req.DoctorID,
		PatientUUID:     req.PatientUUID,
		PatientName:     req.PatientName,
		AppointmentTime: at,
	}, nil
}

func (f *fakeGateway) UpdateAppointment(ctx context.Context, appointmentID int, req registry.UpdateAppointmentRequest) error {
	if f.err != nil {
		return f.err
	}
	if f.updated == nil {
		f.updated = make(map[int]registry.UpdateAppointmentRequest)
	}
	f.updated[appointmentID] = req
	return nil
}

func (f *fakeGateway) CancelAppointment(ctx context.Context, appointmentID int) error {
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, appointmentID)
	return nil
}

func standardGateway() *fakeGateway {
	return &fakeGateway{
		clinics: []registry.Clinic{
			{ID: 1, Name: "Central Clinic", Location: "Main St 1"},
			{ID: 2, Name: "North Clinic", Location: "North Ave 5"},
		},
		findClinics:  map[string][]registry.Clinic{},
		specialities: []string{"Cardiology", "Dermatology"},
		doctors: []registry.Doctor{
			{ID: 10, Name: "Dr. Adams", Speciality: "Cardiology", ClinicID: 1},
			{ID: 11, Name: "Dr. Baker", Speciality: "Cardiology", ClinicID: 1},
			{ID: 12, Name: "Dr. Clark", Speciality: "Dermatology", ClinicID: 1},
		},
		timeSlots: map[string][]string{},
	}
}

func testEngine(gw Gateway, now time.Time) *Engine {
	e := NewEngine(gw, 14, logging.Default())
	e.now = func() time.Time { return now }
	return e
}

// drive feeds one answer and asserts the engine wants more.
func drive(t *testing.T, e *Engine, desc *IntentDescriptor, state *FlowState, answerText string) *Verdict {
	t.Helper()
	var answer *Answer
	if answerText != "" {
		require.NotNil(t, state.LastPrompt)
		answer = &Answer{Token: state.LastPrompt.Token, Text: answerText}
	}
	verdict, err := e.Advance(context.Background(), desc, *state, answer)
	require.NoError(t, err)
	state.Filled = verdict.Filled
	if verdict.Kind == VerdictNeedMore {
		state.Prefill = verdict.Prefill
		state.LastPrompt = verdict.Prompt
	}
	return &verdict
}

func TestAdvanceBookFlow(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.timeSlots["2026-03-11"] = []string{"10:00", "11:30"}
	e := testEngine(gw, now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}

	verdict := drive(t, e, desc, state, "")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotClinic, verdict.Prompt.Slot)
	assert.Len(t, verdict.Prompt.Choices, 2)
	assert.False(t, verdict.Prompt.AllowBack)

	verdict = drive(t, e, desc, state, "1")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotSpecialization, verdict.Prompt.Slot)
	assert.True(t, verdict.Prompt.AllowBack)

	verdict = drive(t, e, desc, state, "Cardiology")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotDoctor, verdict.Prompt.Slot)
	// Only the cardiologists of the chosen clinic are offered.
	assert.Len(t, verdict.Prompt.Choices, 2)

	verdict = drive(t, e, desc, state, "Dr. Adams")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotDate, verdict.Prompt.Slot)
	require.Len(t, verdict.Prompt.Choices, 14)
	assert.Equal(t, "2026-03-10", verdict.Prompt.Choices[0].ID)
	assert.Equal(t, "2026-03-23", verdict.Prompt.Choices[13].ID)

	verdict = drive(t, e, desc, state, "2026-03-11")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotTime, verdict.Prompt.Slot)
	assert.Equal(t, []Choice{{ID: "10:00", Label: "10:00"}, {ID: "11:30", Label: "11:30"}}, verdict.Prompt.Choices)

	verdict = drive(t, e, desc, state, "10:00")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotConfirm, verdict.Prompt.Slot)
	assert.Contains(t, verdict.Prompt.Text, "Dr. Adams")
	assert.Contains(t, verdict.Prompt.Text, "2026-03-11 at 10:00")

	verdict = drive(t, e, desc, state, "confirm")
	require.Equal(t, VerdictComplete, verdict.Kind)
	doctor, ok := get(verdict.Filled, SlotDoctor)
	require.True(t, ok)
	assert.Equal(t, "10", doctor.ID)
}

func TestAdvanceRejectsStaleToken(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	e := testEngine(standardGateway(), now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")

	verdict, err := e.Advance(context.Background(), desc, *state, &Answer{Token: "old-token", Text: "1"})
	require.NoError(t, err)
	assert.Equal(t, VerdictInvalid, verdict.Kind)
	assert.Contains(t, verdict.Reason, "no longer current")
}

func TestAdvanceEmptyTokenAnswersLatestPrompt(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	e := testEngine(standardGateway(), now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")

	verdict, err := e.Advance(context.Background(), desc, *state, &Answer{Text: "Central Clinic"})
	require.NoError(t, err)
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotSpecialization, verdict.Prompt.Slot)
}

func TestAdvanceRejectsUnlistedAnswer(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	e := testEngine(standardGateway(), now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")

	verdict, err := e.Advance(context.Background(), desc, *state, &Answer{Token: state.LastPrompt.Token, Text: "Nonexistent Clinic"})
	require.NoError(t, err)
	assert.Equal(t, VerdictInvalid, verdict.Kind)
	assert.Contains(t, verdict.Reason, "offered options")
}

func TestAdvanceBackUnwindsOneStep(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	e := testEngine(standardGateway(), now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")
	drive(t, e, desc, state, "1")

	verdict := drive(t, e, desc, state, "back")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotClinic, verdict.Prompt.Slot)
	assert.Empty(t, verdict.Filled)
}

func TestAdvancePrefillAutoSelectsSingletons(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.findClinics["central"] = gw.clinics[:1]
	gw.timeSlots["2026-03-12"] = []string{"09:00", "14:00"}
	e := testEngine(gw, now)
	desc := Descriptors[IntentBook]
	state := &FlowState{
		InternalUserID: "uuid-1",
		Prefill: map[string]string{
			SlotClinic:         "central",
			SlotSpecialization: "Dermatology",
			SlotDoctor:         "Clark",
			SlotDate:           "2026-03-12",
			SlotTime:           "14:00",
		},
	}

	// Clinic, specialization, doctor, date, and time all narrow to a single
	// option, so the first prompt the user sees is the confirmation.
	verdict := drive(t, e, desc, state, "")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotConfirm, verdict.Prompt.Slot)
	assert.Contains(t, verdict.Prompt.Text, "Dr. Clark")
	assert.Contains(t, verdict.Prompt.Text, "2026-03-12 at 14:00")
}

func TestAdvancePrefillIgnoredWhenAmbiguous(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	e := testEngine(standardGateway(), now)
	desc := Descriptors[IntentBook]
	state := &FlowState{
		InternalUserID: "uuid-1",
		Prefill:        map[string]string{SlotSpecialization: "Podiatry"},
	}
	drive(t, e, desc, state, "")

	// The hinted specialization matches nothing, so the full list is offered.
	verdict := drive(t, e, desc, state, "1")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotSpecialization, verdict.Prompt.Slot)
	assert.Len(t, verdict.Prompt.Choices, 2)
}

func TestAdvanceUnwindsWhenNoOptionsRemain(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.timeSlots["2026-03-11"] = nil // fully booked day
	e := testEngine(gw, now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")
	drive(t, e, desc, state, "1")
	drive(t, e, desc, state, "Cardiology")
	drive(t, e, desc, state, "Dr. Adams")

	verdict := drive(t, e, desc, state, "2026-03-11")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotDate, verdict.Prompt.Slot)
	assert.Contains(t, verdict.Prompt.Error, "No options are available")
	_, hasDate := get(verdict.Filled, SlotDate)
	assert.False(t, hasDate)
}

func TestAdvanceNoClinicsAtAll(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.clinics = nil
	e := testEngine(gw, now)
	desc := Descriptors[IntentBook]

	verdict, err := e.Advance(context.Background(), desc, FlowState{InternalUserID: "uuid-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictInvalid, verdict.Kind)
	assert.Contains(t, verdict.Reason, "no options")
}

func TestAdvanceRejectsPastTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.timeSlots["2026-03-10"] = []string{"10:00", "16:00"}
	e := testEngine(gw, now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")
	drive(t, e, desc, state, "1")
	drive(t, e, desc, state, "Cardiology")
	drive(t, e, desc, state, "Dr. Adams")
	drive(t, e, desc, state, "2026-03-10")

	// 10:00 is already in the past; picking it re-opens the date step.
	verdict := drive(t, e, desc, state, "10:00")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotDate, verdict.Prompt.Slot)
	assert.Contains(t, verdict.Prompt.Error, "already passed")
}

func TestAdvanceConfirmChangeRewindsSchedule(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.timeSlots["2026-03-11"] = []string{"10:00"}
	e := testEngine(gw, now)
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")
	drive(t, e, desc, state, "1")
	drive(t, e, desc, state, "Cardiology")
	drive(t, e, desc, state, "Dr. Adams")
	drive(t, e, desc, state, "2026-03-11")
	drive(t, e, desc, state, "10:00")

	verdict := drive(t, e, desc, state, "change")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotDate, verdict.Prompt.Slot)
	// Clinic, specialization, and doctor survive the change.
	_, hasDoctor := get(verdict.Filled, SlotDoctor)
	assert.True(t, hasDoctor)
	_, hasDate := get(verdict.Filled, SlotDate)
	assert.False(t, hasDate)
}

func TestAdvanceConfirmCancelAborts(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.appointments = []registry.Appointment{
		{ID: 7, DoctorID: 10, DoctorName: "Dr. Adams", AppointmentTime: time.Date(2026, 3, 15, 10, 0, 0, 0, time.Local)},
	}
	e := testEngine(gw, now)
	desc := Descriptors[IntentCancel]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")

	drive(t, e, desc, state, "7:10")
	verdict, err := e.Advance(context.Background(), desc, *state, &Answer{Token: state.LastPrompt.Token, Text: "cancel"})
	require.NoError(t, err)
	assert.Equal(t, VerdictAborted, verdict.Kind)
}

func TestAdvanceRescheduleCarriesDoctorThroughAppointmentID(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.appointments = []registry.Appointment{
		{ID: 7, DoctorID: 11, DoctorName: "Dr. Baker", AppointmentTime: time.Date(2026, 3, 15, 10, 0, 0, 0, time.Local)},
	}
	gw.timeSlots["2026-03-12"] = []string{"12:00"}
	e := testEngine(gw, now)
	desc := Descriptors[IntentReschedule]
	state := &FlowState{InternalUserID: "uuid-1"}

	verdict := drive(t, e, desc, state, "")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	require.Len(t, verdict.Prompt.Choices, 1)
	assert.Equal(t, "7:11", verdict.Prompt.Choices[0].ID)
	assert.Contains(t, verdict.Prompt.Choices[0].Label, "Dr. Baker")

	drive(t, e, desc, state, "7:11")
	verdict = drive(t, e, desc, state, "2026-03-12")
	require.Equal(t, VerdictNeedMore, verdict.Kind)
	assert.Equal(t, SlotTime, verdict.Prompt.Slot)
	assert.Equal(t, "12:00", verdict.Prompt.Choices[0].ID)
}

func TestAdvanceGatewayErrorSurfaces(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.err = registry.ErrUnavailable
	e := testEngine(gw, now)

	_, err := e.Advance(context.Background(), Descriptors[IntentBook], FlowState{InternalUserID: "uuid-1"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnavailable)
}

func TestAdvanceDoesNotMutateCallerState(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	e := testEngine(standardGateway(), now)
	desc := Descriptors[IntentBook]
	state := FlowState{InternalUserID: "uuid-1"}

	first, err := e.Advance(context.Background(), desc, state, nil)
	require.NoError(t, err)
	state.LastPrompt = first.Prompt

	_, err = e.Advance(context.Background(), desc, state, &Answer{Token: first.Prompt.Token, Text: "1"})
	require.NoError(t, err)
	assert.Empty(t, state.Filled)
}

func TestClinicChoices(t *testing.T) {
	choices := clinicChoices([]registry.Clinic{
		{ID: 1, Name: "Central Clinic", Location: "Main St 1"},
		{ID: 2, Name: "North Clinic", Location: "North Ave 5"},
	})
	assert.Equal(t, []Choice{
		{ID: "1", Label: "Central Clinic"},
		{ID: "2", Label: "North Clinic"},
	}, choices)
	assert.Empty(t, clinicChoices(nil))
}

func TestAdvanceConfirmChoicesPerFlow(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.appointments = []registry.Appointment{
		{ID: 7, DoctorID: 10, DoctorName: "Dr. Adams", AppointmentTime: time.Date(2026, 3, 15, 10, 0, 0, 0, time.Local)},
	}
	gw.timeSlots["2026-03-11"] = []string{"10:00"}
	e := testEngine(gw, now)

	// Booking reaches confirmation with a date filled, so change is offered.
	desc := Descriptors[IntentBook]
	state := &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")
	drive(t, e, desc, state, "1")
	drive(t, e, desc, state, "Cardiology")
	drive(t, e, desc, state, "Dr. Adams")
	drive(t, e, desc, state, "2026-03-11")
	verdict := drive(t, e, desc, state, "10:00")
	require.Equal(t, SlotConfirm, verdict.Prompt.Slot)
	require.Len(t, verdict.Prompt.Choices, 3)
	assert.Equal(t, "change", verdict.Prompt.Choices[1].ID)

	// Cancellation has no date to change; offering it would re-show the same
	// confirmation, so it is absent and treated as an unlisted answer.
	desc = Descriptors[IntentCancel]
	state = &FlowState{InternalUserID: "uuid-1"}
	drive(t, e, desc, state, "")
	verdict = drive(t, e, desc, state, "7:10")
	require.Equal(t, SlotConfirm, verdict.Prompt.Slot)
	assert.Equal(t, []Choice{
		{ID: "confirm", Label: "Confirm"},
		{ID: "cancel", Label: "Cancel"},
	}, verdict.Prompt.Choices)

	rejected, err := e.Advance(context.Background(), desc, *state, &Answer{Token: state.LastPrompt.Token, Text: "change"})
	require.NoError(t, err)
	assert.Equal(t, VerdictInvalid, rejected.Kind)
}

func TestAdvanceCarriesPrunedPrefill(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	gw := standardGateway()
	gw.timeSlots["2026-03-11"] = []string{"10:00"}
	e := testEngine(gw, now)
	desc := Descriptors[IntentBook]
	state := &FlowState{
		InternalUserID: "uuid-1",
		Prefill:        map[string]string{SlotDate: "2026-03-11"},
	}

	verdict := drive(t, e, desc, state, "")
	require.Equal(t, SlotClinic, verdict.Prompt.Slot)
	assert.Equal(t, map[string]string{SlotDate: "2026-03-11"}, verdict.Prefill)

	drive(t, e, desc, state, "1")
	drive(t, e, desc, state, "Cardiology")

	// The date hint auto-selects once the doctor is chosen; the verdict's
	// prefill no longer carries it, so it cannot fire a second time.
	verdict = drive(t, e, desc, state, "Dr. Adams")
	require.Equal(t, SlotTime, verdict.Prompt.Slot)
	date, ok := get(verdict.Filled, SlotDate)
	require.True(t, ok)
	assert.Equal(t, "2026-03-11", date.ID)
	assert.NotContains(t, verdict.Prefill, SlotDate)
}

func TestSplitAppointmentID(t *testing.T) {
	tests := []struct {
		id       string
		wantAppt int
		wantDoc  int
	}{
		{"7:11", 7, 11},
		{"42", 42, 0},
		{"", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			appt, doc := splitAppointmentID(tt.id)
			assert.Equal(t, tt.wantAppt, appt)
			assert.Equal(t, tt.wantDoc, doc)
		})
	}
}
