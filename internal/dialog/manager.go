package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clinicdesk/appointmentbot/internal/identity"
	"github.com/clinicdesk/appointmentbot/internal/nlu"
	"github.com/clinicdesk/appointmentbot/internal/observability/metrics"
	"github.com/clinicdesk/appointmentbot/internal/registry"
	"github.com/clinicdesk/appointmentbot/pkg/logging"
)

// Guided-flow commands delivered by the chat transport.
const (
	CommandStart      = "/start"
	CommandCancel     = "/cancel"
	CommandBook       = "/new_appointment"
	CommandView       = "/my_appointments"
	CommandReschedule = "/reschedule"
	CommandCancelAppt = "/cancel_appointment"
)

// placeholderPhone fills the registry's required phone field; the chat
// platform does not expose the user's number.
const placeholderPhone = "+7(999)999-99-99"

// OutcomeKind tags what the manager hands back to the transport.
type OutcomeKind string

const (
	// OutcomePrompt asks the user for the next slot value.
	OutcomePrompt OutcomeKind = "prompt"
	// OutcomeNotice is an acknowledgment, clarification, or failure message.
	OutcomeNotice OutcomeKind = "notice"
	// OutcomeResult reports a completed operation.
	OutcomeResult OutcomeKind = "result"
)

// Outcome is the manager's reply for one inbound message.
type Outcome struct {
	Kind   OutcomeKind
	Prompt *Prompt
	Text   string
}

// Input is one inbound chat message. PromptToken is set when the transport
// delivered the reply through a structured choice (it echoes the prompt the
// user actually answered).
type Input struct {
	Text        string
	PromptToken string
}

// Manager is the orchestration core: it owns session state, routes input to
// the guided flow or the classifier, drives the slot-filling engine, and
// executes the registry operation once an intent is fully resolved.
type Manager struct {
	store      Store
	resolver   identity.Resolver
	classifier nlu.Classifier
	engine     *Engine
	gateway    Gateway
	logger     *logging.Logger
	metrics    *metrics.DialogMetrics

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewManager wires the dialog core. metrics may be nil.
func NewManager(store Store, resolver identity.Resolver, classifier nlu.Classifier, engine *Engine, gateway Gateway, logger *logging.Logger, m *metrics.DialogMetrics) *Manager {
	if store == nil {
		panic("dialog: store cannot be nil")
	}
	if resolver == nil {
		panic("dialog: resolver cannot be nil")
	}
	if classifier == nil {
		panic("dialog: classifier cannot be nil")
	}
	if engine == nil {
		panic("dialog: engine cannot be nil")
	}
	if gateway == nil {
		panic("dialog: gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		store:      store,
		resolver:   resolver,
		classifier: classifier,
		engine:     engine,
		gateway:    gateway,
		logger:     logger,
		metrics:    m,
		locks:      make(map[int64]*sync.Mutex),
	}
}

// Handle processes one inbound message for one user. Messages from the same
// user are serialized; distinct users proceed independently.
func (m *Manager) Handle(ctx context.Context, profile identity.Profile, input Input) (Outcome, error) {
	lock := m.userLock(profile.PlatformUserID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.store.Load(ctx, profile.PlatformUserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("dialog: load session: %w", err)
	}
	if session == nil {
		session = NewSession(profile.PlatformUserID)
	}

	if session.InternalUserID == "" {
		user, err := m.resolver.Resolve(ctx, profile)
		if err != nil {
			m.logger.Error("identity resolution failed", "platform_user_id", profile.PlatformUserID, "error", err)
			m.metrics.ObserveInbound("identity_failure")
			return notice("The service is temporarily unavailable. Please try again in a moment."), nil
		}
		session.InternalUserID = user.UUID
		session.PatientName = user.FullName()
	}

	text := strings.TrimSpace(input.Text)

	if text == CommandCancel {
		wasActive := session.State == StateCollecting
		session.ClearIntent()
		if err := m.save(ctx, session); err != nil {
			return Outcome{}, err
		}
		m.metrics.ObserveInbound("cancel")
		if wasActive {
			return notice("The current operation has been cancelled."), nil
		}
		return notice("Nothing to cancel."), nil
	}

	if session.State == StateCollecting {
		return m.advance(ctx, session, &Answer{Token: input.PromptToken, Text: text})
	}
	return m.routeIdle(ctx, session, text)
}

// routeIdle handles input when no intent is active: explicit commands first,
// then the classifier.
func (m *Manager) routeIdle(ctx context.Context, session *Session, text string) (Outcome, error) {
	switch text {
	case CommandStart:
		if err := m.save(ctx, session); err != nil {
			return Outcome{}, err
		}
		m.metrics.ObserveInbound("start")
		return notice("Welcome! I can book, show, reschedule, or cancel your medical appointments. Just tell me what you need."), nil
	case CommandBook:
		return m.startIntent(ctx, session, IntentBook, nil)
	case CommandView:
		return m.executeView(ctx, session)
	case CommandReschedule:
		return m.startIntent(ctx, session, IntentReschedule, nil)
	case CommandCancelAppt:
		return m.startIntent(ctx, session, IntentCancel, nil)
	}

	result, err := m.classifier.Classify(ctx, text)
	if err != nil {
		if errors.Is(err, nlu.ErrUnavailable) {
			m.logger.Warn("classifier unavailable", "error", err)
			if saveErr := m.save(ctx, session); saveErr != nil {
				return Outcome{}, saveErr
			}
			m.metrics.ObserveInbound("classifier_unavailable")
			return notice("I'm having trouble understanding requests right now. You can still use the menu commands, e.g. " + CommandBook + "."), nil
		}
		return Outcome{}, fmt.Errorf("dialog: classify: %w", err)
	}
	m.metrics.ObserveClassification(string(result.Intent))

	if !result.Recognized {
		reply := "I couldn't understand that request."
		if result.Reason != "" {
			reply += " " + result.Reason + "."
		}
		reply += " Please try rephrasing."
		if err := m.save(ctx, session); err != nil {
			return Outcome{}, err
		}
		m.metrics.ObserveInbound("unknown_intent")
		return notice(reply), nil
	}

	switch result.Intent {
	case nlu.IntentView:
		return m.executeView(ctx, session)
	case nlu.IntentBook:
		return m.startIntent(ctx, session, IntentBook, result.Slots)
	case nlu.IntentReschedule:
		return m.startIntent(ctx, session, IntentReschedule, result.Slots)
	case nlu.IntentCancel:
		return m.startIntent(ctx, session, IntentCancel, result.Slots)
	}
	if err := m.save(ctx, session); err != nil {
		return Outcome{}, err
	}
	m.metrics.ObserveInbound("unknown_intent")
	return notice("I couldn't understand that request. Please try rephrasing."), nil
}

func (m *Manager) startIntent(ctx context.Context, session *Session, intent string, prefill map[string]string) (Outcome, error) {
	session.State = StateCollecting
	session.Intent = intent
	session.Filled = nil
	session.Prefill = prefill
	session.LastPrompt = nil
	session.Attempts = 0
	return m.advance(ctx, session, nil)
}

// advance runs the engine and applies its verdict to the session.
func (m *Manager) advance(ctx context.Context, session *Session, answer *Answer) (Outcome, error) {
	desc, ok := Descriptors[session.Intent]
	if !ok {
		// Unknown intent in a stored session; recover by resetting.
		session.ClearIntent()
		if err := m.save(ctx, session); err != nil {
			return Outcome{}, err
		}
		return notice("Something went wrong with that conversation. Please start over."), nil
	}

	verdict, err := m.engine.Advance(ctx, desc, FlowState{
		InternalUserID: session.InternalUserID,
		Filled:         session.Filled,
		Prefill:        session.Prefill,
		LastPrompt:     session.LastPrompt,
	}, answer)
	if err != nil {
		// A registry failure mid-flow discards the partial slots; the user
		// restarts the flow once the backend recovers.
		m.observeGatewayFailure(err)
		m.logger.Error("slot filling failed", "intent", session.Intent, "error", err)
		session.ClearIntent()
		if saveErr := m.save(ctx, session); saveErr != nil {
			return Outcome{}, saveErr
		}
		return notice(failureMessage(err)), nil
	}

	switch verdict.Kind {
	case VerdictNeedMore:
		session.Filled = verdict.Filled
		session.Prefill = verdict.Prefill
		session.LastPrompt = verdict.Prompt
		session.Attempts = 0
		if err := m.save(ctx, session); err != nil {
			return Outcome{}, err
		}
		m.metrics.ObserveInbound("prompt")
		return Outcome{Kind: OutcomePrompt, Prompt: verdict.Prompt}, nil

	case VerdictInvalid:
		if session.LastPrompt == nil {
			// Nothing to re-issue: the flow could not even start.
			session.ClearIntent()
			if err := m.save(ctx, session); err != nil {
				return Outcome{}, err
			}
			m.metrics.ObserveInbound("no_choices")
			return notice("Sorry, " + verdict.Reason + ". Please try again later."), nil
		}
		session.Attempts++
		if err := m.save(ctx, session); err != nil {
			return Outcome{}, err
		}
		reissued := *session.LastPrompt
		reissued.Error = verdict.Reason
		m.metrics.ObserveInbound("invalid_answer")
		return Outcome{Kind: OutcomePrompt, Prompt: &reissued}, nil

	case VerdictAborted:
		session.ClearIntent()
		if err := m.save(ctx, session); err != nil {
			return Outcome{}, err
		}
		m.metrics.ObserveInbound("cancel")
		return notice("The current operation has been cancelled."), nil

	case VerdictComplete:
		return m.complete(ctx, session, verdict.Filled)
	}
	return Outcome{}, fmt.Errorf("dialog: unexpected verdict kind %d", verdict.Kind)
}

// complete executes the registry operation for the resolved intent and resets
// the session whatever the outcome.
func (m *Manager) complete(ctx context.Context, session *Session, filled []FilledSlot) (Outcome, error) {
	intent := session.Intent
	outcome, opErr := m.execute(ctx, session, intent, filled)

	session.ClearIntent()
	if err := m.save(ctx, session); err != nil {
		return Outcome{}, err
	}

	if opErr != nil {
		m.observeGatewayFailure(opErr)
		m.metrics.ObserveOperation(intent, "failed")
		m.logger.Error("operation failed", "intent", intent, "error", opErr)
		return notice(failureMessage(opErr)), nil
	}
	m.metrics.ObserveOperation(intent, "ok")
	m.metrics.ObserveInbound("result")
	return outcome, nil
}

func (m *Manager) execute(ctx context.Context, session *Session, intent string, filled []FilledSlot) (Outcome, error) {
	switch intent {
	case IntentBook:
		dateValue, _ := get(filled, SlotDate)
		timeValue, _ := get(filled, SlotTime)
		created, err := m.gateway.CreateAppointment(ctx, registry.CreateAppointmentRequest{
			PatientName:     session.PatientName,
			PatientUUID:     session.InternalUserID,
			Phone:           placeholderPhone,
			AppointmentTime: dateValue.ID + "T" + timeValue.ID + ":00",
			DoctorID:        filledID(filled, SlotDoctor),
		})
		if err != nil {
			return Outcome{}, err
		}
		text := fmt.Sprintf(
			"You're booked!\nPatient: %s\nClinic: %s\nSpecialization: %s\nDoctor: %s\nDate and time: %s",
			created.PatientName,
			created.ClinicName,
			created.DoctorSpeciality,
			created.DoctorName,
			created.AppointmentTime.Format("02.01 15:04"),
		)
		return Outcome{Kind: OutcomeResult, Text: text}, nil

	case IntentReschedule:
		appt, _ := get(filled, SlotAppointment)
		appointmentID, doctorID := splitAppointmentID(appt.ID)
		dateValue, _ := get(filled, SlotDate)
		timeValue, _ := get(filled, SlotTime)
		err := m.gateway.UpdateAppointment(ctx, appointmentID, registry.UpdateAppointmentRequest{
			AppointmentTime: dateValue.ID + "T" + timeValue.ID + ":00",
			DoctorID:        doctorID,
		})
		if err != nil {
			return Outcome{}, err
		}
		text := fmt.Sprintf("Your appointment has been moved to %s at %s.", dateValue.Label, timeValue.Label)
		return Outcome{Kind: OutcomeResult, Text: text}, nil

	case IntentCancel:
		appt, _ := get(filled, SlotAppointment)
		appointmentID, _ := splitAppointmentID(appt.ID)
		if err := m.gateway.CancelAppointment(ctx, appointmentID); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeResult, Text: "The appointment has been cancelled."}, nil

	case IntentView:
		// View has no slots; executeView handles it before slot filling.
		return m.viewOutcome(ctx, session)
	}
	return Outcome{}, fmt.Errorf("dialog: unknown intent %q", intent)
}

// executeView lists appointments without entering a flow.
func (m *Manager) executeView(ctx context.Context, session *Session) (Outcome, error) {
	outcome, err := m.viewOutcome(ctx, session)
	if saveErr := m.save(ctx, session); saveErr != nil {
		return Outcome{}, saveErr
	}
	if err != nil {
		m.observeGatewayFailure(err)
		m.metrics.ObserveOperation(IntentView, "failed")
		m.logger.Error("operation failed", "intent", IntentView, "error", err)
		return notice(failureMessage(err)), nil
	}
	m.metrics.ObserveOperation(IntentView, "ok")
	return outcome, nil
}

func (m *Manager) viewOutcome(ctx context.Context, session *Session) (Outcome, error) {
	appointments, err := m.gateway.UserAppointments(ctx, session.InternalUserID)
	if err != nil {
		return Outcome{}, err
	}
	if len(appointments) == 0 {
		return notice("You have no appointments."), nil
	}

	var sb strings.Builder
	sb.WriteString("Your appointments:\n")
	for i, a := range appointments {
		sb.WriteString(fmt.Sprintf("\n#%d\n", i+1))
		doctorName, speciality, clinicLine := a.DoctorName, a.DoctorSpeciality, a.ClinicName
		if doctor, derr := m.gateway.GetDoctor(ctx, a.DoctorID); derr == nil {
			doctorName, speciality = doctor.Name, doctor.Speciality
			if clinic, cerr := m.gateway.GetClinic(ctx, doctor.ClinicID); cerr == nil {
				clinicLine = clinic.Name + ", " + clinic.Location
			}
		}
		sb.WriteString("Doctor: " + doctorName + "\n")
		sb.WriteString("Specialization: " + speciality + "\n")
		if clinicLine != "" {
			sb.WriteString("Clinic: " + clinicLine + "\n")
		}
		sb.WriteString("Date and time: " + a.AppointmentTime.Format("02.01 15:04") + "\n")
	}
	return Outcome{Kind: OutcomeResult, Text: sb.String()}, nil
}

func (m *Manager) save(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, session); err != nil {
		return fmt.Errorf("dialog: save session: %w", err)
	}
	return nil
}

// userLock returns the mutex serializing one user's messages. Locks are never
// dropped from the map; the set of distinct users is bounded by real traffic.
func (m *Manager) userLock(platformUserID int64) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[platformUserID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[platformUserID] = lock
	}
	return lock
}

func (m *Manager) observeGatewayFailure(err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		m.metrics.ObserveGatewayFailure("not_found")
	case errors.Is(err, registry.ErrConflict):
		m.metrics.ObserveGatewayFailure("conflict")
	case errors.Is(err, registry.ErrValidation):
		m.metrics.ObserveGatewayFailure("validation")
	case errors.Is(err, registry.ErrUnavailable):
		m.metrics.ObserveGatewayFailure("unavailable")
	}
}

// failureMessage maps the gateway taxonomy to the user-facing text.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return "That record could not be found. It may have been removed; please start over."
	case errors.Is(err, registry.ErrConflict):
		return "That time slot has just been taken. Please start over and pick another."
	case errors.Is(err, registry.ErrValidation):
		return "The booking service rejected the request. Please start over."
	default:
		return "The booking service is temporarily unavailable. Please try again later."
	}
}

func notice(text string) Outcome {
	return Outcome{Kind: OutcomeNotice, Text: text}
}
