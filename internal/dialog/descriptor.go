package dialog

// Domain identifies how a slot's value set is produced and validated.
type Domain string

const (
	// DomainChoice enumerates options via a registry query.
	DomainChoice Domain = "choice"
	// DomainDate enumerates a rolling window of calendar dates.
	DomainDate Domain = "date"
	// DomainTime enumerates a doctor's free times for the chosen date.
	DomainTime Domain = "time"
	// DomainConfirm is the static confirm/change/cancel step.
	DomainConfirm Domain = "confirm"
)

// ChoiceQuery names the registry query backing a DomainChoice slot.
type ChoiceQuery string

const (
	QueryClinics      ChoiceQuery = "clinics"
	QuerySpecialities ChoiceQuery = "specialities"
	QueryDoctors      ChoiceQuery = "doctors"
	QueryAppointments ChoiceQuery = "appointments"
)

// Slot names shared by descriptors, classifier prefills, and prompts.
const (
	SlotClinic         = "clinic"
	SlotSpecialization = "specialization"
	SlotDoctor         = "doctor"
	SlotAppointment    = "appointment"
	SlotDate           = "date"
	SlotTime           = "time"
	SlotConfirm        = "confirm"
)

// SlotDef declares one required slot. DependsOn orders collection: a slot is
// only eligible once every dependency is filled, which is also what scopes its
// choice query (doctors are listed for the chosen clinic and specialization).
type SlotDef struct {
	Name      string
	Domain    Domain
	Query     ChoiceQuery
	DependsOn []string
	Prompt    string
}

// IntentDescriptor is the immutable, process-wide definition of one operation:
// its name and the ordered slots it needs before the registry call.
type IntentDescriptor struct {
	Name  string
	Slots []SlotDef
}

// Slot returns the definition with the given name, or nil.
func (d *IntentDescriptor) Slot(name string) *SlotDef {
	for i := range d.Slots {
		if d.Slots[i].Name == name {
			return &d.Slots[i]
		}
	}
	return nil
}

// Intent names. These are session-level identifiers; the nlu package maps its
// classification intents onto them.
const (
	IntentBook       = "book"
	IntentView       = "view"
	IntentReschedule = "reschedule"
	IntentCancel     = "cancel"
)

// Descriptors is the process-wide intent table. New intents are added by
// declaring a descriptor, not by new control flow.
var Descriptors = map[string]*IntentDescriptor{
	IntentBook: {
		Name: IntentBook,
		Slots: []SlotDef{
			{Name: SlotClinic, Domain: DomainChoice, Query: QueryClinics,
				Prompt: "Choose a clinic:"},
			{Name: SlotSpecialization, Domain: DomainChoice, Query: QuerySpecialities,
				DependsOn: []string{SlotClinic},
				Prompt:    "Choose a specialization:"},
			{Name: SlotDoctor, Domain: DomainChoice, Query: QueryDoctors,
				DependsOn: []string{SlotClinic, SlotSpecialization},
				Prompt:    "Choose a doctor:"},
			{Name: SlotDate, Domain: DomainDate,
				DependsOn: []string{SlotDoctor},
				Prompt:    "Choose a date:"},
			{Name: SlotTime, Domain: DomainTime,
				DependsOn: []string{SlotDoctor, SlotDate},
				Prompt:    "Choose a time:"},
			{Name: SlotConfirm, Domain: DomainConfirm,
				DependsOn: []string{SlotTime},
				Prompt:    "Please confirm the appointment:"},
		},
	},
	IntentView: {
		Name: IntentView,
		// No slots: completes immediately and lists the user's appointments.
	},
	IntentReschedule: {
		Name: IntentReschedule,
		Slots: []SlotDef{
			{Name: SlotAppointment, Domain: DomainChoice, Query: QueryAppointments,
				Prompt: "Choose the appointment to reschedule:"},
			{Name: SlotDate, Domain: DomainDate,
				DependsOn: []string{SlotAppointment},
				Prompt:    "Choose a new date:"},
			{Name: SlotTime, Domain: DomainTime,
				DependsOn: []string{SlotAppointment, SlotDate},
				Prompt:    "Choose a new time:"},
			{Name: SlotConfirm, Domain: DomainConfirm,
				DependsOn: []string{SlotTime},
				Prompt:    "Please confirm the change:"},
		},
	},
	IntentCancel: {
		Name: IntentCancel,
		Slots: []SlotDef{
			{Name: SlotAppointment, Domain: DomainChoice, Query: QueryAppointments,
				Prompt: "Choose the appointment to cancel:"},
			{Name: SlotConfirm, Domain: DomainConfirm,
				DependsOn: []string{SlotAppointment},
				Prompt:    "Please confirm the cancellation:"},
		},
	},
}
