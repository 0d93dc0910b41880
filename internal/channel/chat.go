package channel

import (
	"sort"
	"strings"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

var themeColors = map[domain.NotificationType]string{
	domain.TypeReportGenerated:  "0078D4",
	domain.TypeReportSubmitted:  "6F42C1",
	domain.TypeReportApproved:   "28A745",
	domain.TypeReportRejected:   "DC3545",
	domain.TypeWorkflowAssigned: "17A2B8",
	domain.TypeWorkflowDeadline: "FD7E14",
	domain.TypeCommentAdded:     "6C757D",
	domain.TypeSystemAlert:      "D13438",
}

// ThemeColor returns the card accent colour for a notification type as a
// hex string without the leading '#'.
func ThemeColor(t domain.NotificationType) string {
	if c, ok := themeColors[t]; ok {
		return c
	}
	return "0078D4"
}

// RenderTemplate substitutes {{name}} and {name} placeholders with vars.
// Unknown placeholders are left untouched.
func RenderTemplate(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "{") {
		return s
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*4)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// renderMessage applies the template vars to every text field of msg.
func renderMessage(msg Message) Message {
	if len(msg.TemplateVars) == 0 {
		return msg
	}
	msg.Title = RenderTemplate(msg.Title, msg.TemplateVars)
	msg.Body = RenderTemplate(msg.Body, msg.TemplateVars)
	if len(msg.Facts) > 0 {
		facts := make([]Fact, len(msg.Facts))
		for i, f := range msg.Facts {
			facts[i] = Fact{
				Name:  RenderTemplate(f.Name, msg.TemplateVars),
				Value: RenderTemplate(f.Value, msg.TemplateVars),
			}
		}
		msg.Facts = facts
	}
	if len(msg.Actions) > 0 {
		actions := make([]Action, len(msg.Actions))
		for i, a := range msg.Actions {
			actions[i] = Action{
				Title: RenderTemplate(a.Title, msg.TemplateVars),
				URL:   RenderTemplate(a.URL, msg.TemplateVars),
			}
		}
		msg.Actions = actions
	}
	return msg
}

// cardActions returns the message actions, with the message URL appended as
// a "View" button when no action already points at it.
func cardActions(msg Message) []Action {
	actions := append([]Action(nil), msg.Actions...)
	if msg.URL == "" {
		return actions
	}
	for _, a := range actions {
		if a.URL == msg.URL {
			return actions
		}
	}
	return append(actions, Action{Title: "View", URL: msg.URL})
}
