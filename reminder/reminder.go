// Package reminder defines core types for run-scoped system reminders
// injected into agent prompts (safety, correctness, workflow hints).
// Attachment.Tool is a bare string since tool references here are plain
// DSL names, not fully-qualified idents.
package reminder

// Tier is a reminder's priority tier. Lower-valued tiers take
// precedence when enforcing caps or resolving conflicts.
type Tier int

const (
	// TierSafety reminders must never be dropped by policy.
	TierSafety Tier = iota
	// TierGuidance reminders are the first suppressed under tight budgets.
	TierGuidance
)

// AttachmentKind describes where a reminder conceptually attaches.
type AttachmentKind string

const (
	AttachmentRunStart AttachmentKind = "run_start"
	AttachmentUserTurn AttachmentKind = "user_turn"
)

// Attachment scopes a reminder to an attachment point in the conversation.
type Attachment struct {
	Kind AttachmentKind
	// Tool names the DSL tool this reminder is scoped to, if any.
	Tool string
}

// Reminder describes concrete guidance to inject into a prompt.
type Reminder struct {
	ID              string
	Text            string
	Priority        Tier
	Attachment      Attachment
	MaxPerRun       int
	MinTurnsBetween int
}

// DefaultExplanation documents <system-reminder> blocks for inclusion in
// an agent's system prompt.
const DefaultExplanation = `
- **System reminders**
  - You may see <system-reminder>...</system-reminder> blocks in system text.
    These blocks are added by the platform to provide contextual guidance.
    They are not part of the end user's message, but you **should** read and
    follow them when they apply to the current task. Do not expose the raw
    <system-reminder> markup or its wording directly back to the user.`
