package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/Proton-105/chatflow/internal/dialog"
	"github.com/Proton-105/chatflow/internal/i18n"
	"github.com/Proton-105/chatflow/internal/keyboard"
	"github.com/Proton-105/chatflow/internal/session"
)

const (
	FlowName = "booking"

	StateSelectItems = "SELECT_ITEMS"
	StatePhone       = "PHONE"
	StateConfirm     = "CONFIRM"

	keyItems = "items"
	keyPhone = "phone"
	keyPage  = "page"
	keyLang  = "lang"

	itemsPerPage = 5
)

// Draft is the part of the session the flow works with.
type Draft struct {
	Items []string `mapstructure:"items"`
	Phone string   `mapstructure:"phone"`
	Page  int      `mapstructure:"page"`
	Lang  string   `mapstructure:"lang"`
}

func loadDraft(v session.View) (Draft, error) {
	var d Draft
	if err := v.Decode(&d); err != nil {
		return Draft{}, fmt.Errorf("booking draft: %w", err)
	}
	return d, nil
}

func clearDraft(s session.Session) {
	s.Delete(keyItems)
	s.Delete(keyPhone)
	s.Delete(keyPage)
}

// Deps are the collaborators of the flow and its commands.
type Deps struct {
	Catalog     Catalog
	Repo        Repository
	I18n        *i18n.Manager
	DefaultLang string
	// Profiles persists /lang beyond the session when set.
	Profiles LanguageStore
}

// LanguageStore remembers a user's preferred language.
type LanguageStore interface {
	SetLanguage(ctx context.Context, userID int64, lang string) error
}

type service struct {
	Deps
}

// NewFlow builds the booking flow.
func NewFlow(deps Deps) (*dialog.Flow, error) {
	s := &service{Deps: deps}

	return dialog.NewFlow(FlowName, StateSelectItems, dialog.FlowConfig{
		StateSelectItems: {
			OnEnter:   s.loadSelection,
			Component: renderSelection,
			OnAction: []dialog.ActionRoute{
				dialog.On("select_item::id", dialog.Refresh{Command: s.toggleItem}),
				dialog.On("page::n", dialog.Refresh{Command: setPage}),
				dialog.On("^done$", dialog.Transition{Next: dialog.ResolveFunc(s.afterSelection)}),
				dialog.On("^cancel$", dialog.Transition{Command: s.cancel, Next: dialog.Exit()}),
			},
			OnText: []dialog.ActionRoute{
				dialog.On("^/cancel$", dialog.Transition{Command: s.cancel, Next: dialog.Exit()}),
			},
		},
		StatePhone: {
			OnEnter:   s.loadPrompt,
			Component: renderPhonePrompt,
			OnContact: dialog.Goto(savePhone, StateConfirm),
			OnText: []dialog.ActionRoute{
				dialog.On("^/cancel$", dialog.Transition{Command: s.cancel, Next: dialog.Exit()}),
				dialog.On(`^\+?[0-9][0-9 ()-]{5,}$`, dialog.Goto(savePhone, StateConfirm)),
			},
		},
		StateConfirm: {
			OnEnter:   s.loadSummary,
			Component: renderSummary,
			OnAction: []dialog.ActionRoute{
				dialog.On("^confirm$", dialog.Transition{Command: s.confirm, Next: dialog.Exit()}),
				dialog.On("^back$", dialog.Goto(nil, StateSelectItems)),
				dialog.On("^cancel$", dialog.Transition{Command: s.cancel, Next: dialog.Exit()}),
			},
			OnText: []dialog.ActionRoute{
				dialog.On("^/cancel$", dialog.Transition{Command: s.cancel, Next: dialog.Exit()}),
			},
		},
	})
}

func (s *service) translator(u *dialog.Update, lang string) i18n.Translator {
	if lang == "" && u != nil && u.Sender != nil {
		lang = u.Sender.LanguageCode
	}
	if lang == "" {
		lang = s.DefaultLang
	}
	return s.I18n.Translator(lang)
}

func (s *service) contextTranslator(c *dialog.Context) i18n.Translator {
	return s.translator(c.Update(), c.Session().GetString(keyLang))
}

type selectionProps struct {
	T        i18n.Translator
	Items    []Item
	Selected []string
	Page     int
	Pages    int
}

func (s *service) loadSelection(ctx context.Context, in dialog.QueryInput) (any, error) {
	d, err := loadDraft(in.Session)
	if err != nil {
		return nil, err
	}

	all, err := s.Catalog.Items(ctx)
	if err != nil {
		return nil, err
	}
	items, pages := keyboard.Page(all, d.Page, itemsPerPage)

	return selectionProps{
		T:        s.translator(in.Update, d.Lang),
		Items:    items,
		Selected: d.Items,
		Page:     max(1, min(d.Page, pages)),
		Pages:    pages,
	}, nil
}

func renderSelection(props any) dialog.Message {
	p := props.(selectionProps)

	kb := keyboard.NewInlineKeyboard()
	for _, it := range p.Items {
		label := it.Title
		if slices.Contains(p.Selected, it.ID) {
			label = "✅ " + label
		}
		kb.AddRow(keyboard.InlineButton{Text: label, Unique: "select_item", Data: it.ID})
	}
	if p.Pages > 1 {
		kb.AddRow(keyboard.PaginationButtons(p.T, "page", p.Page, p.Pages)...)
	}
	kb.AddRow(
		keyboard.InlineButton{Text: p.T.T("booking.done_button"), Unique: "done"},
		keyboard.InlineButton{Text: p.T.T("booking.cancel_button"), Unique: "cancel"},
	)

	return withKeyboard(p.T, i18n.Format(p.T, "booking.select_items", "Count", strconv.Itoa(len(p.Selected))), kb)
}

func withKeyboard(t i18n.Translator, text string, kb *keyboard.InlineKeyboardBuilder) dialog.Message {
	markup, err := kb.Build()
	if err != nil {
		return dialog.Text(t.T("common.error"))
	}
	return dialog.Message{Text: text, Markup: markup}
}

func (s *service) toggleItem(c *dialog.Context, in dialog.Payload) (any, error) {
	t := s.contextTranslator(c)
	id := in.Params.Get("id")

	item, err := s.Catalog.Item(c.Context(), id)
	if errors.Is(err, ErrItemNotFound) {
		return nil, c.AnswerCallbackQuery(t.T("booking.unknown_item"), false)
	}
	if err != nil {
		return nil, err
	}

	d, err := loadDraft(in.Session)
	if err != nil {
		return nil, err
	}
	items := d.Items
	key := "booking.item_added"
	if i := slices.Index(items, id); i >= 0 {
		items = slices.Delete(items, i, i+1)
		key = "booking.item_removed"
	} else {
		items = append(items, id)
	}
	in.Session.Set(keyItems, items)

	return nil, c.AnswerCallbackQuery(i18n.Format(t, key, "Item", item.Title), false)
}

func setPage(_ *dialog.Context, in dialog.Payload) (any, error) {
	page, err := strconv.Atoi(in.Params.Get("n"))
	if err != nil || page < 1 {
		page = 1
	}
	in.Session.Set(keyPage, page)
	return nil, nil
}

func (s *service) afterSelection(_ any, c *dialog.Context) string {
	d, err := loadDraft(c.Session())
	if err != nil {
		c.Logger().WarnContext(c.Context(), "cannot read booking draft", slog.Any("error", err))
	}
	if len(d.Items) == 0 {
		_ = c.AnswerCallbackQuery(s.contextTranslator(c).T("booking.nothing_selected"), true)
		return StateSelectItems
	}
	return StatePhone
}

type promptProps struct {
	T i18n.Translator
}

func (s *service) loadPrompt(_ context.Context, in dialog.QueryInput) (any, error) {
	d, err := loadDraft(in.Session)
	if err != nil {
		return nil, err
	}
	return promptProps{T: s.translator(in.Update, d.Lang)}, nil
}

func renderPhonePrompt(props any) dialog.Message {
	p := props.(promptProps)
	return dialog.Message{
		Text:   p.T.T("booking.ask_phone"),
		Markup: keyboard.RequestContact(p.T.T("booking.share_phone_button")),
	}
}

func savePhone(_ *dialog.Context, in dialog.Payload) (any, error) {
	phone := strings.TrimSpace(in.Text)
	if in.Contact != nil {
		phone = in.Contact.PhoneNumber
	}
	in.Session.Set(keyPhone, phone)
	return phone, nil
}

type summaryProps struct {
	T     i18n.Translator
	Items []string
	Phone string
}

func (s *service) loadSummary(ctx context.Context, in dialog.QueryInput) (any, error) {
	d, err := loadDraft(in.Session)
	if err != nil {
		return nil, err
	}

	titles, err := s.titles(ctx, d.Items)
	if err != nil {
		return nil, err
	}

	return summaryProps{
		T:     s.translator(in.Update, d.Lang),
		Items: titles,
		Phone: d.Phone,
	}, nil
}

func (s *service) titles(ctx context.Context, ids []string) ([]string, error) {
	titles := make([]string, 0, len(ids))
	for _, id := range ids {
		item, err := s.Catalog.Item(ctx, id)
		if errors.Is(err, ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		titles = append(titles, item.Title)
	}
	return titles, nil
}

func renderSummary(props any) dialog.Message {
	p := props.(summaryProps)

	kb := keyboard.NewInlineKeyboard().
		AddRow(keyboard.InlineButton{Text: p.T.T("booking.confirm_button"), Unique: "confirm"}).
		AddRow(
			keyboard.InlineButton{Text: p.T.T("booking.back_button"), Unique: "back"},
			keyboard.InlineButton{Text: p.T.T("booking.cancel_button"), Unique: "cancel"},
		)

	text := i18n.Format(p.T, "booking.summary", "Items", strings.Join(p.Items, ", "), "Phone", p.Phone)
	return withKeyboard(p.T, text, kb)
}

func (s *service) confirm(c *dialog.Context, in dialog.Payload) (any, error) {
	d, err := loadDraft(in.Session)
	if err != nil {
		return nil, err
	}

	b := newBooking(c.SenderID(), d.Items, d.Phone)
	if err := s.Repo.Save(c.Context(), b); err != nil {
		return nil, err
	}
	clearDraft(in.Session)

	c.Logger().InfoContext(c.Context(), "booking confirmed",
		slog.String("booking_id", b.ID), slog.Int("items", len(b.Items)))
	return b, s.finish(c, "booking.confirmed")
}

func (s *service) cancel(c *dialog.Context, in dialog.Payload) (any, error) {
	clearDraft(in.Session)
	return nil, s.finish(c, "booking.cancelled")
}

// finish closes the conversation in place for button presses and with a new
// message (which also hides the reply keyboard) for text.
func (s *service) finish(c *dialog.Context, key string) error {
	text := s.contextTranslator(c).T(key)

	if c.Update().IsCallback() && c.Update().MessageID != 0 {
		if err := c.AnswerCallbackQuery("", false); err != nil {
			return err
		}
		return c.EditMessageText(dialog.Text(text))
	}

	_, err := c.Reply(dialog.Message{Text: text, Markup: keyboard.Remove()})
	return err
}
