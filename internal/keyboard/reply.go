package keyboard

// ReplyKeyboard builds a resized reply keyboard from rows of labels.
func ReplyKeyboard(rows ...[]string) *Markup {
	m := &Markup{ResizeReply: true}
	for _, labels := range rows {
		if len(labels) == 0 {
			continue
		}

		row := make([]ReplyButton, len(labels))
		for i, label := range labels {
			row[i] = ReplyButton{Text: label}
		}
		m.Reply = append(m.Reply, row)
	}
	return m
}

// RequestContact builds a one-time keyboard with a single share-contact button.
func RequestContact(label string) *Markup {
	return &Markup{
		Reply:       [][]ReplyButton{{{Text: label, RequestContact: true}}},
		ResizeReply: true,
		OneTime:     true,
	}
}
