package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/chatflow/internal/keyboard"
	"github.com/Proton-105/chatflow/internal/pattern"
)

func TestEncodeCallback(t *testing.T) {
	tests := []struct {
		name      string
		unique    string
		data      string
		want      string
		wantError bool
	}{
		{name: "with data", unique: "select_item", data: "2", want: "select_item:2"},
		{name: "without data", unique: "menu:book", want: "menu:book"},
		{name: "exceeds limit", unique: strings.Repeat("x", keyboard.CallbackDataLimitBytes+1), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keyboard.EncodeCallback(tt.unique, tt.data)
			if tt.wantError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCallback(t *testing.T) {
	unique, data, err := keyboard.DecodeCallback("action:part1:part2")
	require.NoError(t, err)
	assert.Equal(t, "action", unique)
	assert.Equal(t, "part1:part2", data)

	unique, data, err = keyboard.DecodeCallback("done")
	require.NoError(t, err)
	assert.Equal(t, "done", unique)
	assert.Empty(t, data)

	_, _, err = keyboard.DecodeCallback("")
	assert.Error(t, err)
}

func TestEncodedCallbackMatchesTemplate(t *testing.T) {
	data, err := keyboard.EncodeCallback("select_item", "42")
	require.NoError(t, err)

	params, ok := pattern.MustCompile("select_item::id").Match(data)
	require.True(t, ok)
	assert.Equal(t, "42", params.Get("id"))
}

func TestInlineKeyboardBuilder(t *testing.T) {
	markup, err := keyboard.NewInlineKeyboard().
		AddRow(
			keyboard.InlineButton{Text: "Prev", Unique: "nav", Data: "1"},
			keyboard.InlineButton{Text: "Next", Unique: "nav", Data: "2"},
		).
		AddRow().
		AddRow(keyboard.InlineButton{Text: "Docs", URL: "https://example.com"}).
		Build()
	require.NoError(t, err)

	require.Len(t, markup.Inline, 2)
	assert.Equal(t, "nav:2", markup.Inline[0][1].Data)
	assert.Equal(t, "https://example.com", markup.Inline[1][0].URL)
	assert.Empty(t, markup.Inline[1][0].Data)
	assert.True(t, markup.IsInline())
}

func TestInlineKeyboardBuilder_Overflow(t *testing.T) {
	_, err := keyboard.NewInlineKeyboard().
		AddRow(keyboard.InlineButton{Text: "x", Unique: "a", Data: strings.Repeat("y", 70)}).
		Build()
	assert.Error(t, err)

	assert.Panics(t, func() {
		keyboard.NewInlineKeyboard().
			AddRow(keyboard.InlineButton{Text: "x", Unique: strings.Repeat("y", 70)}).
			MustBuild()
	})
}

func TestReplyKeyboards(t *testing.T) {
	m := keyboard.ReplyKeyboard([]string{"A", "B"}, nil, []string{"C"})
	require.Len(t, m.Reply, 2)
	assert.True(t, m.ResizeReply)
	assert.False(t, m.IsInline())

	contact := keyboard.RequestContact("Share phone")
	assert.True(t, contact.Reply[0][0].RequestContact)
	assert.True(t, contact.OneTime)

	assert.True(t, keyboard.Remove().RemoveReply)
}

type stubTranslator map[string]string

func (s stubTranslator) T(key string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return key
}

func (s stubTranslator) Lang() string { return "xx" }

func TestPaginationButtons(t *testing.T) {
	buttons := keyboard.PaginationButtons(nil, "items", 2, 3)
	require.Len(t, buttons, 3)
	assert.Equal(t, "1", buttons[0].Data)
	assert.Equal(t, "Page 2/3", buttons[1].Text)
	assert.Equal(t, "3", buttons[2].Data)

	buttons = keyboard.PaginationButtons(nil, "items", 9, 3)
	require.Len(t, buttons, 2)
	assert.Equal(t, "3", buttons[1].Data)

	tr := stubTranslator{"pagination.page": "Стр. {{.Page}} из {{.Total}}"}
	buttons = keyboard.PaginationButtons(tr, "items", 1, 1)
	require.Len(t, buttons, 1)
	assert.Equal(t, "Стр. 1 из 1", buttons[0].Text)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	got, total := keyboard.Page(items, 2, 2)
	assert.Equal(t, []int{3, 4}, got)
	assert.Equal(t, 3, total)

	got, _ = keyboard.Page(items, 10, 2)
	assert.Equal(t, []int{5}, got)

	got, total = keyboard.Page([]int{}, 1, 2)
	assert.Empty(t, got)
	assert.Equal(t, 1, total)
}
