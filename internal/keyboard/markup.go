// Package keyboard builds transport-neutral reply markup for outgoing messages.
package keyboard

// Button is an inline button. Exactly one of Data or URL is expected.
type Button struct {
	Text string
	Data string
	URL  string
}

// ReplyButton is a button of the custom reply keyboard shown under the input field.
type ReplyButton struct {
	Text           string
	RequestContact bool
}

// Markup describes the keyboard attached to a message. A zero Markup means none.
type Markup struct {
	Inline [][]Button
	Reply  [][]ReplyButton

	// ResizeReply shrinks the reply keyboard to fit its buttons.
	ResizeReply bool
	// OneTime hides the reply keyboard after a button is pressed.
	OneTime bool
	// RemoveReply removes a previously shown reply keyboard.
	RemoveReply bool
}

// IsInline reports whether the markup carries an inline keyboard.
func (m *Markup) IsInline() bool {
	return m != nil && len(m.Inline) > 0
}

// Remove returns markup that hides the reply keyboard.
func Remove() *Markup {
	return &Markup{RemoveReply: true}
}
