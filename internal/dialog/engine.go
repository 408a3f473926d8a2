package dialog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointmentbot/internal/registry"
	"github.com/clinicdesk/appointmentbot/pkg/logging"
)

// Gateway is the slice of the registry API the dialog layer depends on.
// *registry.Client satisfies it.
type Gateway interface {
	ListClinics(ctx context.Context) ([]registry.Clinic, error)
	FindClinicsByName(ctx context.Context, name string) ([]registry.Clinic, error)
	GetClinic(ctx context.Context, clinicID int) (*registry.Clinic, error)
	ListSpecialities(ctx context.Context, filter registry.DoctorFilter) ([]string, error)
	ListDoctors(ctx context.Context, filter registry.DoctorFilter) ([]registry.Doctor, error)
	GetDoctor(ctx context.Context, doctorID int) (*registry.Doctor, error)
	DoctorTimeSlots(ctx context.Context, doctorID int, date string) ([]string, error)
	UserAppointments(ctx context.Context, patientUUID string) ([]registry.Appointment, error)
	CreateAppointment(ctx context.Context, req registry.CreateAppointmentRequest) (*registry.Appointment, error)
	UpdateAppointment(ctx context.Context, appointmentID int, req registry.UpdateAppointmentRequest) error
	CancelAppointment(ctx context.Context, appointmentID int) error
}

// VerdictKind tags the engine's answer to "what's next".
type VerdictKind int

const (
	// VerdictNeedMore means another slot must be collected; Prompt is set.
	VerdictNeedMore VerdictKind = iota
	// VerdictComplete means every required slot is filled.
	VerdictComplete
	// VerdictInvalid means the answer was rejected; the caller re-issues the
	// last prompt with Reason as the error annotation.
	VerdictInvalid
	// VerdictAborted means the user declined at the confirmation step.
	VerdictAborted
)

// Verdict is the engine's result. Filled and Prefill carry the updated slot
// values and remaining hints for NeedMore and Complete; the engine never
// touches session state itself.
type Verdict struct {
	Kind    VerdictKind
	Prompt  *Prompt
	Filled  []FilledSlot
	Prefill map[string]string
	Reason  string
}

// Answer is a user reply to the last prompt. Token echoes the prompt token the
// transport attached; an empty token means a plain-text reply to the latest
// prompt.
type Answer struct {
	Token string
	Text  string
}

// FlowState is the engine's read-only view of one session's slot filling.
type FlowState struct {
	InternalUserID string
	Filled         []FilledSlot
	Prefill        map[string]string
	LastPrompt     *Prompt
}

// backAnswer is the reserved reply that unwinds one step.
const backAnswer = "back"

// Confirmation choice ids.
const (
	confirmYes    = "confirm"
	confirmChange = "change"
	confirmAbort  = "cancel"
)

// Engine computes the next unfilled slot, renders its choice set, and
// validates answers. It holds no per-session state.
type Engine struct {
	gateway        Gateway
	logger         *logging.Logger
	dateWindowDays int
	now            func() time.Time
}

// NewEngine creates a slot-filling engine.
func NewEngine(gateway Gateway, dateWindowDays int, logger *logging.Logger) *Engine {
	if gateway == nil {
		panic("dialog: gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if dateWindowDays < 1 {
		dateWindowDays = 14
	}
	return &Engine{
		gateway:        gateway,
		logger:         logger,
		dateWindowDays: dateWindowDays,
		now:            time.Now,
	}
}

// Advance applies answer (if any) against state and determines what happens
// next. Gateway failures are returned as errors for the caller to map; every
// user-correctable problem comes back as a VerdictInvalid instead.
func (e *Engine) Advance(ctx context.Context, desc *IntentDescriptor, state FlowState, answer *Answer) (Verdict, error) {
	filled := append([]FilledSlot(nil), state.Filled...)
	prefill := make(map[string]string, len(state.Prefill))
	for k, v := range state.Prefill {
		prefill[k] = v
	}

	var pendingErr string

	if answer != nil {
		if state.LastPrompt == nil {
			return Verdict{Kind: VerdictInvalid, Reason: "no prompt outstanding"}, nil
		}
		if answer.Token != "" && answer.Token != state.LastPrompt.Token {
			return Verdict{Kind: VerdictInvalid, Reason: "that choice list is no longer current, please pick from the latest one"}, nil
		}

		slot := desc.Slot(state.LastPrompt.Slot)
		if slot == nil {
			return Verdict{Kind: VerdictInvalid, Reason: "no prompt outstanding"}, nil
		}

		text := strings.TrimSpace(answer.Text)
		if strings.EqualFold(text, backAnswer) && state.LastPrompt.AllowBack {
			if len(filled) > 0 {
				removed := filled[len(filled)-1]
				filled = filled[:len(filled)-1]
				delete(prefill, removed.Name)
			}
		} else {
			choice, ok := matchChoice(state.LastPrompt.Choices, text)
			if !ok {
				return Verdict{Kind: VerdictInvalid, Reason: "please choose one of the offered options"}, nil
			}

			switch slot.Domain {
			case DomainTime:
				dateValue, _ := get(filled, SlotDate)
				at, err := time.ParseInLocation("2006-01-02 15:04", dateValue.ID+" "+choice.ID, time.Local)
				if err != nil {
					return Verdict{Kind: VerdictInvalid, Reason: "please choose one of the offered options"}, nil
				}
				if at.Before(e.now()) {
					// The day rolled over while the user was deciding.
					filled = remove(filled, SlotDate)
					delete(prefill, SlotDate)
					delete(prefill, SlotTime)
					pendingErr = "The chosen date and time have already passed. Please pick a new date."
				} else {
					filled = append(filled, FilledSlot{Name: slot.Name, Value: choice})
					delete(prefill, slot.Name)
				}
			case DomainConfirm:
				switch choice.ID {
				case confirmYes:
					filled = append(filled, FilledSlot{Name: slot.Name, Value: choice})
				case confirmChange:
					filled = remove(filled, SlotTime)
					filled = remove(filled, SlotDate)
					delete(prefill, SlotDate)
					delete(prefill, SlotTime)
				case confirmAbort:
					return Verdict{Kind: VerdictAborted}, nil
				}
			default:
				filled = append(filled, FilledSlot{Name: slot.Name, Value: choice})
				delete(prefill, slot.Name)
			}
		}
	}

	for {
		next := nextSlot(desc, filled)
		if next == nil {
			return Verdict{Kind: VerdictComplete, Filled: filled, Prefill: prefill}, nil
		}

		choices, narrowed, err := e.renderChoices(ctx, next, filled, state.InternalUserID, prefill)
		if err != nil {
			return Verdict{}, err
		}

		if len(choices) == 0 {
			if len(filled) > 0 {
				// Unwind the answer that narrowed the set to nothing, the
				// same way the guided flow steps back a screen.
				removed := filled[len(filled)-1]
				filled = filled[:len(filled)-1]
				delete(prefill, removed.Name)
				delete(prefill, next.Name)
				pendingErr = "No options are available for that choice. Please pick differently."
				continue
			}
			return Verdict{Kind: VerdictInvalid, Reason: "no options are currently available"}, nil
		}

		// A prefill that narrowed the set to exactly one option is taken as
		// the answer; the user never sees the prompt.
		if narrowed && len(choices) == 1 && next.Domain != DomainConfirm {
			filled = append(filled, FilledSlot{Name: next.Name, Value: choices[0]})
			delete(prefill, next.Name)
			continue
		}

		prompt := e.buildPrompt(next, choices, filled, pendingErr)
		return Verdict{Kind: VerdictNeedMore, Prompt: prompt, Filled: filled, Prefill: prefill}, nil
	}
}

// nextSlot returns the first slot, in declared order, that is unfilled and
// whose dependencies are all filled.
func nextSlot(desc *IntentDescriptor, filled []FilledSlot) *SlotDef {
	for i := range desc.Slots {
		slot := &desc.Slots[i]
		if _, ok := get(filled, slot.Name); ok {
			continue
		}
		ready := true
		for _, dep := range slot.DependsOn {
			if _, ok := get(filled, dep); !ok {
				ready = false
				break
			}
		}
		if ready {
			return slot
		}
	}
	return nil
}

// renderChoices produces the current choice set for a slot. narrowed reports
// whether a prefill hint restricted the query; callers auto-select singleton
// narrowed sets.
func (e *Engine) renderChoices(ctx context.Context, slot *SlotDef, filled []FilledSlot, internalUserID string, prefill map[string]string) ([]Choice, bool, error) {
	switch slot.Domain {
	case DomainChoice:
		return e.renderQueryChoices(ctx, slot, filled, internalUserID, prefill)
	case DomainDate:
		return e.renderDateChoices(prefill)
	case DomainTime:
		return e.renderTimeChoices(ctx, filled, prefill)
	case DomainConfirm:
		choices := []Choice{{ID: confirmYes, Label: "Confirm"}}
		// Change re-opens the date step; flows that never pick a date (a plain
		// cancellation) have nothing for it to rewind, so it is not offered.
		if _, ok := get(filled, SlotDate); ok {
			choices = append(choices, Choice{ID: confirmChange, Label: "Change"})
		}
		return append(choices, Choice{ID: confirmAbort, Label: "Cancel"}), false, nil
	}
	return nil, false, fmt.Errorf("dialog: slot %q has unsupported domain %q", slot.Name, slot.Domain)
}

func (e *Engine) renderQueryChoices(ctx context.Context, slot *SlotDef, filled []FilledSlot, internalUserID string, prefill map[string]string) ([]Choice, bool, error) {
	switch slot.Query {
	case QueryClinics:
		if hint := prefill[SlotClinic]; hint != "" {
			clinics, err := e.gateway.FindClinicsByName(ctx, hint)
			if err != nil {
				return nil, false, err
			}
			if len(clinics) > 0 {
				return clinicChoices(clinics), true, nil
			}
			// Hint matched nothing; fall through to the full list.
		}
		clinics, err := e.gateway.ListClinics(ctx)
		if err != nil {
			return nil, false, err
		}
		return clinicChoices(clinics), false, nil

	case QuerySpecialities:
		filter := registry.DoctorFilter{
			ClinicID:   filledID(filled, SlotClinic),
			Speciality: prefill[SlotSpecialization],
			Name:       prefill[SlotDoctor],
		}
		narrowed := filter.Speciality != "" || filter.Name != ""
		specs, err := e.gateway.ListSpecialities(ctx, filter)
		if err != nil {
			return nil, false, err
		}
		if len(specs) == 0 && narrowed {
			filter.Speciality, filter.Name = "", ""
			if specs, err = e.gateway.ListSpecialities(ctx, filter); err != nil {
				return nil, false, err
			}
			narrowed = false
		}
		choices := make([]Choice, 0, len(specs))
		for _, s := range specs {
			choices = append(choices, Choice{ID: s, Label: s})
		}
		return choices, narrowed, nil

	case QueryDoctors:
		spec, _ := get(filled, SlotSpecialization)
		filter := registry.DoctorFilter{
			ClinicID:   filledID(filled, SlotClinic),
			Speciality: spec.ID,
			Name:       prefill[SlotDoctor],
		}
		narrowed := filter.Name != ""
		doctors, err := e.gateway.ListDoctors(ctx, filter)
		if err != nil {
			return nil, false, err
		}
		if len(doctors) == 0 && narrowed {
			filter.Name = ""
			if doctors, err = e.gateway.ListDoctors(ctx, filter); err != nil {
				return nil, false, err
			}
			narrowed = false
		}
		choices := make([]Choice, 0, len(doctors))
		for _, d := range doctors {
			choices = append(choices, Choice{ID: strconv.Itoa(d.ID), Label: d.Name})
		}
		return choices, narrowed, nil

	case QueryAppointments:
		appointments, err := e.gateway.UserAppointments(ctx, internalUserID)
		if err != nil {
			return nil, false, err
		}
		choices := make([]Choice, 0, len(appointments))
		for i, a := range appointments {
			label := fmt.Sprintf("#%d %s on %s", i+1, a.DoctorName, a.AppointmentTime.Format("02.01 15:04"))
			// The id carries the doctor so a reschedule can query time slots
			// without refetching the appointment list.
			choices = append(choices, Choice{
				ID:    fmt.Sprintf("%d:%d", a.ID, a.DoctorID),
				Label: label,
			})
		}
		return choices, false, nil
	}
	return nil, false, fmt.Errorf("dialog: slot %q has unsupported query %q", slot.Name, slot.Query)
}

func clinicChoices(clinics []registry.Clinic) []Choice {
	choices := make([]Choice, 0, len(clinics))
	for _, c := range clinics {
		choices = append(choices, Choice{ID: strconv.Itoa(c.ID), Label: c.Name})
	}
	return choices
}

func (e *Engine) renderDateChoices(prefill map[string]string) ([]Choice, bool, error) {
	today := e.now()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	if hint := prefill[SlotDate]; hint != "" {
		if at, err := time.ParseInLocation("2006-01-02", hint, today.Location()); err == nil {
			if !at.Before(start) && at.Before(start.AddDate(0, 0, e.dateWindowDays)) {
				return []Choice{{ID: hint, Label: hint}}, true, nil
			}
		}
		// Out-of-window or malformed hints are ignored, not errors.
	}

	choices := make([]Choice, 0, e.dateWindowDays)
	for i := 0; i < e.dateWindowDays; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		choices = append(choices, Choice{ID: d, Label: d})
	}
	return choices, false, nil
}

func (e *Engine) renderTimeChoices(ctx context.Context, filled []FilledSlot, prefill map[string]string) ([]Choice, bool, error) {
	doctorID := filledID(filled, SlotDoctor)
	if doctorID == 0 {
		// Reschedule flows carry the doctor inside the appointment choice id.
		if appt, ok := get(filled, SlotAppointment); ok {
			_, doctorID = splitAppointmentID(appt.ID)
		}
	}
	dateValue, _ := get(filled, SlotDate)

	times, err := e.gateway.DoctorTimeSlots(ctx, doctorID, dateValue.ID)
	if err != nil {
		return nil, false, err
	}

	if hint := prefill[SlotTime]; hint != "" {
		for _, t := range times {
			if t == hint {
				return []Choice{{ID: t, Label: t}}, true, nil
			}
		}
	}

	choices := make([]Choice, 0, len(times))
	for _, t := range times {
		choices = append(choices, Choice{ID: t, Label: t})
	}
	return choices, false, nil
}

func (e *Engine) buildPrompt(slot *SlotDef, choices []Choice, filled []FilledSlot, errText string) *Prompt {
	text := slot.Prompt
	if slot.Domain == DomainConfirm {
		text = text + "\n" + summarize(filled)
	}
	return &Prompt{
		Token:     uuid.NewString(),
		Slot:      slot.Name,
		Text:      text,
		Choices:   choices,
		Error:     errText,
		AllowBack: len(filled) > 0,
	}
}

// summarize renders the confirmation recap from the filled slots.
func summarize(filled []FilledSlot) string {
	var lines []string
	if v, ok := get(filled, SlotAppointment); ok {
		lines = append(lines, "Appointment: "+v.Label)
	}
	if v, ok := get(filled, SlotClinic); ok {
		lines = append(lines, "Clinic: "+v.Label)
	}
	if v, ok := get(filled, SlotSpecialization); ok {
		lines = append(lines, "Specialization: "+v.Label)
	}
	if v, ok := get(filled, SlotDoctor); ok {
		lines = append(lines, "Doctor: "+v.Label)
	}
	if v, ok := get(filled, SlotDate); ok {
		if t, okT := get(filled, SlotTime); okT {
			lines = append(lines, "Date and time: "+v.Label+" at "+t.Label)
		} else {
			lines = append(lines, "Date: "+v.Label)
		}
	}
	return strings.Join(lines, "\n")
}

func matchChoice(choices []Choice, text string) (Choice, bool) {
	for _, c := range choices {
		if c.ID == text || strings.EqualFold(c.Label, text) {
			return c, true
		}
	}
	return Choice{}, false
}

func get(filled []FilledSlot, name string) (Choice, bool) {
	for _, f := range filled {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Choice{}, false
}

func remove(filled []FilledSlot, name string) []FilledSlot {
	out := filled[:0]
	for _, f := range filled {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

func filledID(filled []FilledSlot, name string) int {
	value, ok := get(filled, name)
	if !ok {
		return 0
	}
	id, _ := strconv.Atoi(value.ID)
	return id
}

// splitAppointmentID decodes the "appointmentID:doctorID" choice id.
func splitAppointmentID(id string) (appointmentID, doctorID int) {
	parts := strings.SplitN(id, ":", 2)
	appointmentID, _ = strconv.Atoi(parts[0])
	if len(parts) == 2 {
		doctorID, _ = strconv.Atoi(parts[1])
	}
	return appointmentID, doctorID
}
