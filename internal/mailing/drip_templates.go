package mailing

import (
	"github.com/ignite/immo-leads/internal/domain"
)

// PersonaCopy is the persona-specific wording injected in the default drip.
type PersonaCopy struct {
	Situation string // "vendre un bien reçu en héritage"
	Tip       string // one practical advice for step 2
	Urgency   string // closing argument for step 4
}

var personaCopy = map[domain.Persona]PersonaCopy{
	domain.PersonaInvestisseur: {
		Situation: "arbitrer votre patrimoine locatif",
		Tip:       "Vendre un bien loué est possible : la présence d'un locataire en place influence le prix, mais aussi la fiscalité de la plus-value selon la durée de détention.",
		Urgency:   "Les taux actuels rendent les acquéreurs investisseurs plus sélectifs : un prix juste dès la mise en vente fait la différence.",
	},
	domain.PersonaSuccession: {
		Situation: "vendre un bien reçu en succession",
		Tip:       "Tous les héritiers doivent être d'accord pour vendre. Anticipez l'attestation de propriété du notaire, elle conditionne la signature.",
		Urgency:   "Un bien vacant se déprécie et coûte (taxe foncière, charges, assurance) : fixer un calendrier avec les co-héritiers évite les blocages.",
	},
	domain.PersonaSeparation: {
		Situation: "vendre dans le cadre d'une séparation",
		Tip:       "Une estimation indépendante et partagée apaise la discussion sur le partage et sur une éventuelle soulte.",
		Urgency:   "Plus la vente est préparée tôt, plus chacun peut se projeter sereinement dans son nouveau logement.",
	},
	domain.PersonaMutation: {
		Situation: "vendre avant une mutation professionnelle",
		Tip:       "La vente à distance est courante : procuration notariée et visites déléguées permettent de ne pas revenir pour chaque étape.",
		Urgency:   "Avec une date de départ fixée, chaque semaine compte : un mandat bien préparé raccourcit le délai de vente.",
	},
	domain.PersonaRetraite: {
		Situation: "préparer votre projet immobilier de retraite",
		Tip:       "Vendre pour un logement plus adapté libère souvent un capital : pensez à simuler l'impact sur vos revenus et votre transmission.",
		Urgency:   "Anticiper la vente vous laisse choisir le bon moment plutôt que le subir.",
	},
	domain.PersonaFamille: {
		Situation: "vendre pour vous agrandir",
		Tip:       "Vente et achat se coordonnent : un prêt relais ou une vente avec clause suspensive évitent de porter deux biens.",
		Urgency:   "Le calendrier scolaire guide souvent le projet : une mise en vente au bon moment sécurise la rentrée.",
	},
}

var genericCopy = PersonaCopy{
	Situation: "réussir votre projet de vente",
	Tip:       "Un bien correctement estimé dès le départ se vend en moyenne plus vite et plus près de son prix affiché.",
	Urgency:   "Nos conseillers connaissent votre secteur et peuvent vous accompagner gratuitement.",
}

// CopyFor returns the persona wording, or the generic one.
func CopyFor(p domain.Persona) PersonaCopy {
	if c, ok := personaCopy[p]; ok {
		return c
	}
	return genericCopy
}

const dripFooter = `<p style="font-size:12px;color:#888">Vous recevez cet email car vous avez téléchargé un guide sur {{ site_url }}.
<a href="{{ unsubscribe_url }}">Se désinscrire</a></p>`

var defaultDrip = [4]struct {
	subject string
	html    string
	text    string
}{
	{
		subject: `{{ first_name | default: "Bonjour" | capitalize }}, votre guide « {{ guide_title }} »`,
		html: `<p>Bonjour {{ first_name | capitalize }},</p>
<p>Merci pour votre intérêt. Voici votre guide pour {{ situation }} :</p>
<p><a href="{{ guide_url }}">Télécharger « {{ guide_title }} »</a></p>
<p>Dans les prochains jours, nous vous enverrons quelques conseils pratiques adaptés à votre situation.</p>` + dripFooter,
		text: "Bonjour {{ first_name | capitalize }},\n\nVotre guide « {{ guide_title }} » : {{ guide_url }}\n\nSe désinscrire : {{ unsubscribe_url }}",
	},
	{
		subject: `Un conseil pour {{ situation }}`,
		html: `<p>Bonjour {{ first_name | capitalize }},</p>
<p>{{ tip }}</p>
<p>Vous pouvez relire le guide à tout moment : <a href="{{ guide_url }}">{{ guide_title }}</a>.</p>` + dripFooter,
		text: "Bonjour {{ first_name | capitalize }},\n\n{{ tip }}\n\nSe désinscrire : {{ unsubscribe_url }}",
	},
	{
		subject: `Combien vaut votre bien aujourd'hui ?`,
		html: `<p>Bonjour {{ first_name | capitalize }},</p>
<p>Pour {{ situation }}, tout commence par un prix juste. Notre estimation en ligne vous donne une fourchette en deux minutes.</p>
<p><a href="{{ site_url }}/estimation">Estimer mon bien gratuitement</a></p>` + dripFooter,
		text: "Bonjour {{ first_name | capitalize }},\n\nEstimez votre bien gratuitement : {{ site_url }}/estimation\n\nSe désinscrire : {{ unsubscribe_url }}",
	},
	{
		subject: `{{ first_name | default: "Bonjour" | capitalize }}, parlons de votre projet`,
		html: `<p>Bonjour {{ first_name | capitalize }},</p>
<p>{{ urgency }}</p>
<p>Un conseiller peut vous rappeler quand vous le souhaitez, sans engagement.</p>
<p><a href="{{ site_url }}/contact">Être rappelé</a></p>` + dripFooter,
		text: "Bonjour {{ first_name | capitalize }},\n\n{{ urgency }}\n\nÊtre rappelé : {{ site_url }}/contact\n\nSe désinscrire : {{ unsubscribe_url }}",
	},
}

// DefaultDripTemplate returns the built-in template for a drip step (1..4).
// Persona wording is supplied at render time through DripVars.
func DefaultDripTemplate(persona domain.Persona, step int) (*domain.EmailTemplate, bool) {
	if step < 1 || step > len(defaultDrip) {
		return nil, false
	}
	d := defaultDrip[step-1]
	return &domain.EmailTemplate{
		Persona: persona,
		Step:    step,
		Subject: d.subject,
		HTML:    d.html,
		Text:    d.text,
		Active:  true,
	}, true
}

// DripVars holds the values available to drip templates.
type DripVars struct {
	FirstName      string
	Email          string
	Persona        domain.Persona
	Step           int
	GuideTitle     string
	GuideURL       string
	UnsubscribeURL string
	SiteURL        string
}

// Map converts the vars into a Liquid binding.
func (v DripVars) Map() map[string]interface{} {
	c := CopyFor(v.Persona)
	return map[string]interface{}{
		"first_name":      v.FirstName,
		"email":           v.Email,
		"persona":         string(v.Persona),
		"persona_label":   v.Persona.Label(),
		"step":            v.Step,
		"guide_title":     v.GuideTitle,
		"guide_url":       v.GuideURL,
		"unsubscribe_url": v.UnsubscribeURL,
		"site_url":        v.SiteURL,
		"situation":       c.Situation,
		"tip":             c.Tip,
		"urgency":         c.Urgency,
	}
}
