// Package domain holds the label catalog and mutation rules for the labeler.
package domain

import "strings"

// Sentinel trigger keys recognized by the orchestrator. Neither selects a
// label definition.
const (
	// DeleteTriggerKey requests negation of every active label.
	DeleteTriggerKey = "3lb4xfkaj7w2v"
	// SelfTriggerKey marks a like on the labeler's own profile record.
	SelfTriggerKey = "self"
)

// Locale is one human-readable rendering of a label.
type Locale struct {
	Lang        string `json:"lang"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LabelDefinition maps a trigger rkey to a label identifier and its locale
// strings. Definitions are immutable and loaded at startup.
type LabelDefinition struct {
	RKey       string   `json:"rkey"`
	Identifier string   `json:"identifier"`
	Locales    []Locale `json:"locales"`
}

// Catalog resolves trigger rkeys to label definitions.
type Catalog struct {
	definitions []LabelDefinition
	byRKey      map[string]LabelDefinition
}

// NewCatalog builds a catalog from the given definitions.
func NewCatalog(definitions []LabelDefinition) *Catalog {
	byRKey := make(map[string]LabelDefinition, len(definitions))
	for _, def := range definitions {
		byRKey[def.RKey] = def
	}
	return &Catalog{definitions: definitions, byRKey: byRKey}
}

// DefaultCatalog returns the built-in identity label catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(Definitions)
}

// ByRKey returns the definition for the trigger rkey, if any.
func (c *Catalog) ByRKey(rkey string) (LabelDefinition, bool) {
	def, ok := c.byRKey[strings.TrimSpace(rkey)]
	return def, ok
}

// Definitions lists all catalog entries in declaration order.
func (c *Catalog) Definitions() []LabelDefinition {
	return c.definitions
}

// Definitions is the static label catalog published by this labeler.
var Definitions = []LabelDefinition{
	// Sexual orientations
	{
		RKey:       "3lb4xfigg652t",
		Identifier: "lesbian",
		Locales: []Locale{
			{Lang: "es", Name: "Lesbiana 🏳️‍🌈", Description: "Persona que se identifica como mujer y siente atracción por otras mujeres"},
			{Lang: "en", Name: "Lesbian 🏳️‍🌈", Description: "Person who identifies as a woman and is attracted to women"},
		},
	},
	{
		RKey:       "3lb4xfijnlx2d",
		Identifier: "gay",
		Locales: []Locale{
			{Lang: "es", Name: "Gay 🏳️‍🌈", Description: "Persona que se identifica como hombre y siente atracción por otros hombres"},
			{Lang: "en", Name: "Gay 🏳️‍🌈", Description: "Person who identifies as a man and is attracted to men"},
		},
	},
	{
		RKey:       "3lb4xfindf426",
		Identifier: "bisexual",
		Locales: []Locale{
			{Lang: "es", Name: "Bisexual 💗💜💙", Description: "Persona que siente atracción por dos o más géneros"},
			{Lang: "en", Name: "Bisexual 💗💜💙", Description: "Person who is attracted to two or more genders"},
		},
	},
	{
		RKey:       "3lb4xfiqrfl22",
		Identifier: "pansexual",
		Locales: []Locale{
			{Lang: "es", Name: "Pansexual 💗💛💙", Description: "Persona que siente atracción independientemente del género"},
			{Lang: "en", Name: "Pansexual 💗💛💙", Description: "Person who experiences attraction regardless of gender"},
		},
	},
	// Gender identities
	{
		RKey:       "3lb4xfiu4nf2t",
		Identifier: "transgender",
		Locales: []Locale{
			{Lang: "es", Name: "Trans 🏳️‍⚧️", Description: "Persona cuya identidad de género difiere del sexo asignado al nacer"},
			{Lang: "en", Name: "Trans 🏳️‍⚧️", Description: "Person whose gender identity differs from their assigned sex at birth"},
		},
	},
	{
		RKey:       "3lb4xfixjmd27",
		Identifier: "nonbinary",
		Locales: []Locale{
			{Lang: "es", Name: "No Binario 🏳️‍⚧️", Description: "Persona cuya identidad de género está fuera del binario hombre/mujer"},
			{Lang: "en", Name: "Non-Binary 🏳️‍⚧️", Description: "Person whose gender identity falls outside the man/woman binary"},
		},
	},
	{
		RKey:       "3lb4xfj32rn25",
		Identifier: "agender",
		Locales: []Locale{
			{Lang: "es", Name: "Agénero 🏳️‍⚧️", Description: "Persona que no se identifica con ningún género"},
			{Lang: "en", Name: "Agender 🏳️‍⚧️", Description: "Person who does not identify with any gender"},
		},
	},
	// Other identities
	{
		RKey:       "3lb4xfj6cdo2a",
		Identifier: "queer",
		Locales: []Locale{
			{Lang: "es", Name: "Queer 🏳️‍🌈", Description: "Persona que no se identifica con las normas tradicionales de género y sexualidad"},
			{Lang: "en", Name: "Queer 🏳️‍🌈", Description: "Person who does not identify with traditional gender and sexuality norms"},
		},
	},
	{
		RKey:       "3lb4xfjbtot27",
		Identifier: "intersex",
		Locales: []Locale{
			{Lang: "es", Name: "Intersex ⚧", Description: "Persona con características sexuales que no se ajustan a las definiciones típicas de masculino o femenino"},
			{Lang: "en", Name: "Intersex ⚧", Description: "Person with sex characteristics that do not fit typical binary notions of male or female bodies"},
		},
	},
	// Asexual spectrum
	{
		RKey:       "3lb4xfjffx22v",
		Identifier: "asexual",
		Locales: []Locale{
			{Lang: "es", Name: "Asexual 🖤🤍💜", Description: "Persona que experimenta poca o ninguna atracción sexual"},
			{Lang: "en", Name: "Asexual 🖤🤍💜", Description: "Person who experiences little to no sexual attraction"},
		},
	},
	{
		RKey:       "3lb4xfjiuqx22",
		Identifier: "demisexual",
		Locales: []Locale{
			{Lang: "es", Name: "Demisexual 🖤💜", Description: "Persona que solo experimenta atracción sexual después de formar un vínculo emocional"},
			{Lang: "en", Name: "Demisexual 🖤💜", Description: "Person who only experiences sexual attraction after forming an emotional bond"},
		},
	},
	{
		RKey:       "3lb4xfjm5p62a",
		Identifier: "graysexual",
		Locales: []Locale{
			{Lang: "es", Name: "Grisexual 🖤", Description: "Persona que experimenta atracción sexual raramente o con baja intensidad"},
			{Lang: "en", Name: "Graysexual 🖤", Description: "Person who experiences sexual attraction rarely or with low intensity"},
		},
	},
	{
		RKey:       "3lb4xfjpml722",
		Identifier: "aceflux",
		Locales: []Locale{
			{Lang: "es", Name: "Aceflux 💜", Description: "Persona cuya atracción sexual fluctúa dentro del espectro asexual"},
			{Lang: "en", Name: "Aceflux 💜", Description: "Person whose sexual attraction fluctuates within the asexual spectrum"},
		},
	},
	// Aromantic spectrum
	{
		RKey:       "3lb4xfjswh525",
		Identifier: "aromantic",
		Locales: []Locale{
			{Lang: "es", Name: "Aromántico 💚🤍🖤", Description: "Persona que experimenta poca o ninguna atracción romántica"},
			{Lang: "en", Name: "Aromantic 💚🤍🖤", Description: "Person who experiences little to no romantic attraction"},
		},
	},
	{
		RKey:       "3lb4xfjwbky2m",
		Identifier: "demiromantic",
		Locales: []Locale{
			{Lang: "es", Name: "Demiromántico 💚", Description: "Persona que solo experimenta atracción romántica después de formar un vínculo emocional"},
			{Lang: "en", Name: "Demiromantic 💚", Description: "Person who only experiences romantic attraction after forming an emotional bond"},
		},
	},
	{
		RKey:       "3lb4xfjzuak2v",
		Identifier: "grayromantic",
		Locales: []Locale{
			{Lang: "es", Name: "Grisoromántico 🖤💚", Description: "Persona que experimenta atracción romántica raramente o con baja intensidad"},
			{Lang: "en", Name: "Grayromantic 🖤💚", Description: "Person who experiences romantic attraction rarely or with low intensity"},
		},
	},
	{
		RKey:       "3lb4xfk5jv722",
		Identifier: "aroflux",
		Locales: []Locale{
			{Lang: "es", Name: "Aroflux 💚", Description: "Persona cuya atracción romántica fluctúa dentro del espectro arromántico"},
			{Lang: "en", Name: "Aroflux 💚", Description: "Person whose romantic attraction fluctuates within the aromantic spectrum"},
		},
	},
}
