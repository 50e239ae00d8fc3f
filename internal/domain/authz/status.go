package authz

// Status es el estado de un objeto dentro de su máquina de estados.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusSubmitted Status = "Submitted"
	StatusValidated Status = "Validated"
	StatusRejected  Status = "Rejected"
	StatusSignedOff Status = "Signed Off"
	StatusOpen      Status = "Open"
	StatusClosed    Status = "Closed"
)

var resourceStatuses = map[ResourceType][]Status{
	ResourceTimesheet:   {StatusDraft, StatusSubmitted, StatusValidated, StatusRejected},
	ResourceExpense:     {StatusDraft, StatusSubmitted, StatusValidated, StatusRejected},
	ResourceDeliverable: {StatusDraft, StatusSubmitted, StatusSignedOff},
	ResourceRAIDItem:    {StatusOpen, StatusClosed},
}

// StatusesFor devuelve los estados posibles de rt; vacío si el recurso no tiene ciclo de vida.
func StatusesFor(rt ResourceType) []Status {
	src := resourceStatuses[rt]
	out := make([]Status, len(src))
	copy(out, src)
	return out
}

// InitialStatus es el estado con el que se crea un objeto nuevo.
func InitialStatus(rt ResourceType) Status {
	if s := resourceStatuses[rt]; len(s) > 0 {
		return s[0]
	}
	return ""
}

// ValidStatus indica si s pertenece al ciclo de vida de rt.
func ValidStatus(rt ResourceType, s Status) bool {
	for _, x := range resourceStatuses[rt] {
		if x == s {
			return true
		}
	}
	return false
}

// Transition describe un cambio de status disparado por un verbo.
type Transition struct {
	From []Status
	To   Status
}

// Allows indica si el objeto puede salir desde s.
func (t Transition) Allows(s Status) bool {
	for _, f := range t.From {
		if f == s {
			return true
		}
	}
	return false
}

// transitions es la única fuente de los status gates: la usa el evaluador
// en proceso (StatusGate) y la capa de datos (update condicional).
var transitions = map[ResourceType]map[Action]Transition{
	ResourceTimesheet: {
		ActionSubmit:   {From: []Status{StatusDraft, StatusRejected}, To: StatusSubmitted},
		ActionValidate: {From: []Status{StatusSubmitted}, To: StatusValidated},
		ActionReject:   {From: []Status{StatusSubmitted}, To: StatusRejected},
	},
	ResourceExpense: {
		ActionSubmit:   {From: []Status{StatusDraft, StatusRejected}, To: StatusSubmitted},
		ActionValidate: {From: []Status{StatusSubmitted}, To: StatusValidated},
		ActionReject:   {From: []Status{StatusSubmitted}, To: StatusRejected},
	},
	ResourceDeliverable: {
		ActionSubmit:  {From: []Status{StatusDraft}, To: StatusSubmitted},
		ActionSignOff: {From: []Status{StatusSubmitted}, To: StatusSignedOff},
	},
	ResourceRAIDItem: {
		ActionClose: {From: []Status{StatusOpen}, To: StatusClosed},
	},
}

func TransitionFor(rt ResourceType, a Action) (Transition, bool) {
	t, ok := transitions[rt][a]
	if !ok {
		return Transition{}, false
	}
	from := make([]Status, len(t.From))
	copy(from, t.From)
	return Transition{From: from, To: t.To}, true
}
