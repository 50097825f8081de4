/*
particular.go - Charge line types and registration

PURPOSE:
  Particulars are the itemized charges on a case bill. Their type is an
  enumerated label; "Other" lets the user type a free-text label instead.
  A registry keeps the known labels so the UI can list them and ingestion
  can tell whether a label denotes a hearing appearance.

HOW IT WORKS:
  1. Built-in types are registered on init()
  2. Deployments may register extra labels at startup
  3. Ingestion uses LookupParticularType to decide whether the
     appearanceDate field is meaningful

SEE ALSO:
  - case.go: Particular struct
  - document.go: Ingestion of particular maps
*/
package ledger

import (
	"sort"
	"sync"
)

// ParticularType is the label of a charge line.
type ParticularType string

const (
	ParticularAppearance   ParticularType = "Appearance"
	ParticularFiling       ParticularType = "Filing"
	ParticularDrafting     ParticularType = "Drafting"
	ParticularConsultation ParticularType = "Consultation"
	ParticularCourtFee     ParticularType = "Court Fee"
	ParticularNotary       ParticularType = "Notary"
	ParticularXerox        ParticularType = "Xerox Charges"
	ParticularTyping       ParticularType = "Typing"
	ParticularTravel       ParticularType = "Travel"
	ParticularOther        ParticularType = "Other"
)

// ParticularKind describes a registered particular type.
type ParticularKind struct {
	Type ParticularType `json:"type"`

	// IsAppearance marks hearing/appearance charges, the only ones whose
	// appearance date is kept.
	IsAppearance bool `json:"is_appearance"`
}

var (
	particularRegistry = make(map[ParticularType]ParticularKind)
	particularMu       sync.RWMutex
)

func init() {
	RegisterParticularType(ParticularKind{Type: ParticularAppearance, IsAppearance: true})
	for _, t := range []ParticularType{
		ParticularFiling, ParticularDrafting, ParticularConsultation, ParticularCourtFee,
		ParticularNotary, ParticularXerox, ParticularTyping, ParticularTravel, ParticularOther,
	} {
		RegisterParticularType(ParticularKind{Type: t})
	}
}

// RegisterParticularType adds or replaces a particular type in the registry.
func RegisterParticularType(k ParticularKind) {
	particularMu.Lock()
	defer particularMu.Unlock()
	particularRegistry[k.Type] = k
}

// LookupParticularType finds a registered type. The second result is false
// for free-text labels that were never registered.
func LookupParticularType(t ParticularType) (ParticularKind, bool) {
	particularMu.RLock()
	defer particularMu.RUnlock()
	k, ok := particularRegistry[t]
	return k, ok
}

// ParticularTypes lists registered types alphabetically, with Other last.
func ParticularTypes() []ParticularKind {
	particularMu.RLock()
	defer particularMu.RUnlock()

	kinds := make([]ParticularKind, 0, len(particularRegistry))
	for _, k := range particularRegistry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].Type == ParticularOther {
			return false
		}
		if kinds[j].Type == ParticularOther {
			return true
		}
		return kinds[i].Type < kinds[j].Type
	})
	return kinds
}

// IsAppearance reports whether charges of this type carry a hearing date.
func (t ParticularType) IsAppearance() bool {
	k, ok := LookupParticularType(t)
	return ok && k.IsAppearance
}
