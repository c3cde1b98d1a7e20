package reminders

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

const (
	dateLayout = "02/01/2006" // fr-FR
	timeLayout = "15:04"
	signature  = "MyCareCoach\nVotre santé en mouvement"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

type messageData struct {
	FirstName string
	Date      string
	Time      string
	Coach     string
	Signature string
}

var templates = map[ReminderType]messageTemplate{
	TypeRemind24h: mustTemplate(TypeRemind24h,
		`Rappel: Votre séance demain à {{.Time}}`,
		`Bonjour {{.FirstName}},

Ceci est un rappel pour votre séance de sport-santé demain :

📅 Date: {{.Date}}
🕐 Heure: {{.Time}}
👤 Coach: {{.Coach}}

À demain !

{{.Signature}}`),

	TypeRemind1h: mustTemplate(TypeRemind1h,
		`Rappel: Votre séance commence à {{.Time}}`,
		`Bonjour {{.FirstName}},

Votre séance de sport-santé commence dans une heure :

📅 Date: {{.Date}}
🕐 Heure: {{.Time}}
👤 Coach: {{.Coach}}

À tout de suite !

{{.Signature}}`),

	TypeConfirmation: mustTemplate(TypeConfirmation,
		`Merci pour votre séance du {{.Date}}`,
		`Bonjour {{.FirstName}},

Merci pour votre séance du {{.Date}} à {{.Time}} avec {{.Coach}}.
N'hésitez pas à noter vos ressentis dans votre espace client.

{{.Signature}}`),

	TypeNewSession: mustTemplate(TypeNewSession,
		`Nouvelle séance programmée le {{.Date}} à {{.Time}}`,
		`Bonjour {{.FirstName}},

{{.Coach}} vous a programmé une nouvelle séance :

📅 Date: {{.Date}}
🕐 Heure: {{.Time}}

À bientôt !

{{.Signature}}`),

	TypeManual: mustTemplate(TypeManual,
		`Rappel: Votre séance du {{.Date}} à {{.Time}}`,
		`Bonjour {{.FirstName}},

{{.Coach}} vous rappelle votre prochaine séance :

📅 Date: {{.Date}}
🕐 Heure: {{.Time}}

{{.Signature}}`),
}

func mustTemplate(t ReminderType, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(string(t) + ".subject").Parse(subject)),
		body:    template.Must(template.New(string(t) + ".body").Parse(body)),
	}
}

// BuildMessage renders the email for r. Dates are shown in loc.
func BuildMessage(r Reminder, loc *time.Location) (Message, error) {
	tmpl, ok := templates[r.Type]
	if !ok {
		return Message{}, fmt.Errorf("no template for reminder type %q", r.Type)
	}
	if loc == nil {
		loc = time.UTC
	}

	local := r.StartsAt.In(loc)
	data := messageData{
		FirstName: r.ClientFirstName,
		Date:      local.Format(dateLayout),
		Time:      local.Format(timeLayout),
		Coach:     r.CoachName,
		Signature: signature,
	}

	var subject, body strings.Builder
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", r.Type, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", r.Type, err)
	}

	return Message{
		To:      r.ClientEmail,
		Subject: subject.String(),
		Body:    body.String(),
	}, nil
}

// TestMessage is the fixed email a coach can send to check the transport.
func TestMessage(to, coachName string) Message {
	return Message{
		To:      to,
		Subject: "Email de test MyCareCoach",
		Body: fmt.Sprintf("Bonjour %s,\n\nCet email confirme que l'envoi des rappels fonctionne.\n\n%s",
			coachName, signature),
	}
}
