package booking

import (
	"fmt"
	"strings"

	"github.com/Proton-105/chatflow/internal/dialog"
	"github.com/Proton-105/chatflow/internal/i18n"
	"github.com/Proton-105/chatflow/internal/keyboard"
)

// Register adds the booking flow and its entry points to router.
func Register(router *dialog.Router, deps Deps) error {
	flow, err := NewFlow(deps)
	if err != nil {
		return err
	}
	if err := router.AddFlow(flow); err != nil {
		return err
	}

	s := &service{Deps: deps}

	router.OnCommand(`^/start$`, s.start)
	router.OnCommand(`^/book$`, enter)
	router.OnCommand(`^/bookings$`, s.list)
	router.OnCommand(`^/lang (?P<lang>en|ru)$`, s.setLanguage)
	router.OnCallbackQuery(`^menu_book$`, enter)
	router.OnText(`^/`, s.unknownCommand)

	return nil
}

func enter(c *dialog.Context) error {
	return c.EnterFlow(FlowName, "")
}

func (s *service) start(c *dialog.Context) error {
	t := s.contextTranslator(c)

	name := ""
	if sender := c.Sender(); sender != nil {
		name = sender.FirstName
	}

	kb := keyboard.NewInlineKeyboard().
		AddRow(keyboard.InlineButton{Text: t.T("start.book_button"), Unique: "menu_book"})

	_, err := c.Reply(withKeyboard(t, i18n.Format(t, "start.welcome", "Name", name), kb))
	return err
}

func (s *service) list(c *dialog.Context) error {
	t := s.contextTranslator(c)

	bookings, err := s.Repo.ListByUser(c.Context(), c.SenderID())
	if err != nil {
		return err
	}
	if len(bookings) == 0 {
		_, err := c.Reply(dialog.Text(t.T("bookings.empty")))
		return err
	}

	var sb strings.Builder
	sb.WriteString(t.T("bookings.header"))
	for _, b := range bookings {
		titles, err := s.titles(c.Context(), b.Items)
		if err != nil {
			return err
		}
		fmt.Fprintf(&sb, "\n%s", i18n.Format(t, "bookings.entry",
			"Date", b.CreatedAt.Format("2006-01-02 15:04"),
			"Items", strings.Join(titles, ", ")))
	}

	_, err = c.Reply(dialog.Text(sb.String()))
	return err
}

func (s *service) setLanguage(c *dialog.Context) error {
	lang := c.Param("lang")
	c.Session().Set(keyLang, lang)
	if s.Profiles != nil {
		if err := s.Profiles.SetLanguage(c.Context(), c.SenderID(), lang); err != nil {
			return err
		}
	}

	_, err := c.Reply(dialog.Text(s.I18n.Translator(lang).T("common.language_set")))
	return err
}

func (s *service) unknownCommand(c *dialog.Context) error {
	_, err := c.Reply(dialog.Text(s.contextTranslator(c).T("common.unknown_command")))
	return err
}
