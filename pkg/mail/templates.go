package mail

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template kinds understood by Render.
const (
	KindPasswordReset      = "password_reset"
	KindPasswordChanged    = "password_changed"
	KindGroupInvite        = "group_invite"
	KindTaskAssignment     = "task_assignment"
	KindAssignmentDecision = "assignment_decision"
)

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]mailTemplate{
	KindPasswordReset: mustTemplate(
		"Reset your password",
		`Hello {{.name}},

Someone asked to reset the password for your account. Use the link below within {{.ttl}}:
{{.link}}

If you did not request this, you can ignore this message.
`),
	KindPasswordChanged: mustTemplate(
		"Your password was changed",
		`Hello {{.name}},

The password for your account was just changed. If this was not you, reset it immediately.
`),
	KindGroupInvite: mustTemplate(
		"You're invited to join {{.group}}",
		`Hello,

{{.inviter}} invited you to join the group "{{.group}}". Accept the invitation here:
{{.link}}

The invitation expires in {{.ttl}}.
`),
	KindTaskAssignment: mustTemplate(
		"New assignment: {{.task}}",
		`Hello {{.name}},

{{.assigner}} assigned you to "{{.task}}".

Accept: {{.accept_link}}
Reject: {{.reject_link}}
`),
	KindAssignmentDecision: mustTemplate(
		"{{.assignee}} {{.decision}} \"{{.task}}\"",
		`Hello {{.name}},

{{.assignee}} {{.decision}} the assignment "{{.task}}".
`),
}

func mustTemplate(subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New("subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New("body").Option("missingkey=zero").Parse(body)),
	}
}

// Render builds a Message for the given template kind and context values.
func Render(kind, recipient string, data map[string]string) (Message, error) {
	tpl, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown template %q", kind)
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("mail: render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("mail: render body: %w", err)
	}

	return Message{
		Kind:    kind,
		To:      []string{recipient},
		Subject: subject.String(),
		Body:    body.String(),
	}, nil
}
