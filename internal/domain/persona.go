package domain

// Persona is one of the six predefined seller profiles. Guides, drip
// templates and articles are written for a persona.
type Persona string

const (
	PersonaInvestisseur Persona = "investisseur"
	PersonaSuccession   Persona = "succession"
	PersonaSeparation   Persona = "separation"
	PersonaMutation     Persona = "mutation"
	PersonaRetraite     Persona = "retraite"
	PersonaFamille      Persona = "famille"
)

var personaLabels = map[Persona]string{
	PersonaInvestisseur: "Investisseur",
	PersonaSuccession:   "Vente après succession",
	PersonaSeparation:   "Vente après séparation",
	PersonaMutation:     "Mutation professionnelle",
	PersonaRetraite:     "Projet de retraite",
	PersonaFamille:      "Famille qui s'agrandit",
}

// Personas lists every persona in display order.
func Personas() []Persona {
	return []Persona{
		PersonaInvestisseur, PersonaSuccession, PersonaSeparation,
		PersonaMutation, PersonaRetraite, PersonaFamille,
	}
}

// Valid reports whether p is one of the six known personas.
func (p Persona) Valid() bool {
	_, ok := personaLabels[p]
	return ok
}

// Label returns the French display name.
func (p Persona) Label() string {
	if l, ok := personaLabels[p]; ok {
		return l
	}
	return string(p)
}
