package stage

import v1 "github.com/byxorna/stageboard/pkg/types/v1"

const (
	KindInstitutionCalls       = "institution-calls"
	KindFreelanceApplications  = "freelance-applications"
	KindInternshipApplications = "internship-applications"
)

// Builtin stage graphs for the collections the admin, institution and expert
// dashboards track.
var Builtin = map[string][]Definition{
	KindInstitutionCalls: {
		{Name: "call_now", Label: "Call now", Next: []v1.Stage{"called"}},
		{Name: "called", Label: "Called"},
	},
	KindFreelanceApplications: {
		{Name: "pending", Label: "Pending", Next: []v1.Stage{"shortlisted", "rejected"}},
		{Name: "shortlisted", Label: "Shortlisted"},
		{Name: "rejected", Label: "Rejected"},
	},
	KindInternshipApplications: {
		{Name: "pending", Label: "Pending", Next: []v1.Stage{"interview", "rejected"}},
		{Name: "interview", Label: "Interview", Next: []v1.Stage{"selected", "rejected"}},
		{Name: "selected", Label: "Selected"},
		{Name: "rejected", Label: "Rejected"},
	},
}

// NewBuiltin returns the registry for one of the builtin kinds
func NewBuiltin(kind string) (*Registry, error) {
	defs, ok := Builtin[kind]
	if !ok {
		return nil, ErrUnknownKind{Kind: kind}
	}
	return New(kind, defs...)
}

type ErrUnknownKind struct {
	Kind string
}

func (e ErrUnknownKind) Error() string { return "unknown entity kind " + e.Kind }
