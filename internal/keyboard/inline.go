package keyboard

import "fmt"

// InlineButton is a builder-side button definition.
type InlineButton struct {
	Text   string
	Unique string // identifies the callback route
	Data   string // optional payload appended to Unique
	URL    string
}

// InlineKeyboardBuilder accumulates rows of buttons before producing Markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{}
}

// AddRow appends a row. Empty rows are skipped.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build encodes callback data for every button and fails if any payload is too long.
func (b *InlineKeyboardBuilder) Build() (*Markup, error) {
	rows := make([][]Button, len(b.rows))
	for i, row := range b.rows {
		rows[i] = make([]Button, len(row))
		for j, btn := range row {
			if btn.URL != "" {
				rows[i][j] = Button{Text: btn.Text, URL: btn.URL}
				continue
			}

			data, err := EncodeCallback(btn.Unique, btn.Data)
			if err != nil {
				return nil, fmt.Errorf("button %q: %w", btn.Text, err)
			}
			rows[i][j] = Button{Text: btn.Text, Data: data}
		}
	}

	return &Markup{Inline: rows}, nil
}

// MustBuild is Build for static keyboards; it panics on error.
func (b *InlineKeyboardBuilder) MustBuild() *Markup {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}
