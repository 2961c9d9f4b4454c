package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/domain/subscriber"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	msgUnauthorized = "Error: you are not allowed to run this command."
	msgInProgress   = "A reconciliation or dispatch is already running. Try again later."

	defaultRunsShown = 5
	maxRunsShown     = 20
)

// CycleRunner is the part of app.CycleService the bot drives.
type CycleRunner interface {
	RunFullCycle(ctx context.Context) (*cycle.Result, error)
	RunBillReconciliation(ctx context.Context) (*cycle.Result, error)
	RunAlertReconciliation(ctx context.Context) (*cycle.Result, error)
	FetchNewRecords(ctx context.Context) ([]*record.Record, error)
	Dispatch(ctx context.Context) (*notification.Report, error)
	RecentRuns(ctx context.Context, limit int) ([]cycle.Run, error)
}

// AdminHandlers implements the admin commands. Every handler returns the reply text so
// the command logic stays independent of telebot.
type AdminHandlers struct {
	admin  *app.AdminService
	cycles CycleRunner
	log    *logrus.Entry
}

func NewAdminHandlers(admin *app.AdminService, cycles CycleRunner, log *logrus.Entry) *AdminHandlers {
	return &AdminHandlers{admin: admin, cycles: cycles, log: log}
}

type commandFunc func(ctx context.Context, senderID int64, args []string) string

// RegisterAdminHandlers registers handlers for admin commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, h *AdminHandlers) {
	commands := map[string]commandFunc{
		"/run_cycle":         h.RunCycle,
		"/runs":              h.Runs,
		"/add_subscriber":    h.AddSubscriber,
		"/update_subscriber": h.UpdateSubscriber,
		"/remove_subscriber": h.RemoveSubscriber,
		"/list_subscribers":  h.ListSubscribers,
	}
	for name, fn := range commands {
		b.Handle(name, h.wrap(ctx, name, fn))
	}

	b.Handle("/notify", func(c telebot.Context) error {
		text, markup := h.ConfirmNotify(ctx, c.Sender().ID)
		if markup == nil {
			return c.Send(text)
		}
		return c.Send(text, markup)
	})
}

func (h *AdminHandlers) wrap(ctx context.Context, name string, fn commandFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		h.log.WithFields(logrus.Fields{
			"handler":   name,
			"sender_id": c.Sender().ID,
		}).Info("Command received")
		return c.Send(fn(ctx, c.Sender().ID, c.Args()))
	}
}

func (h *AdminHandlers) authorized(senderID int64, handler string) bool {
	if h.admin.IsAdmin(senderID) {
		return true
	}
	h.log.WithFields(logrus.Fields{
		"handler":   handler,
		"sender_id": senderID,
	}).Warn("Unauthorized access attempt")
	return false
}

// RunCycle handles /run_cycle [bills|alerts]. The detailed summary reaches the admin
// chat through the Reporter.
func (h *AdminHandlers) RunCycle(ctx context.Context, senderID int64, args []string) string {
	if !h.authorized(senderID, "/run_cycle") {
		return msgUnauthorized
	}

	run := h.cycles.RunFullCycle
	if len(args) > 0 {
		src, err := record.ParseSource(args[0])
		if err != nil {
			return "Invalid format. Use: /run_cycle [bills|alerts]"
		}
		run = h.cycles.RunBillReconciliation
		if src == record.SourceProviderAlert {
			run = h.cycles.RunAlertReconciliation
		}
	}

	res, err := run(ctx)
	if errors.Is(err, app.ErrCycleInProgress) {
		return msgInProgress
	}
	if res == nil {
		h.log.WithError(err).Error("Cycle failed to start")
		return fmt.Sprintf("Cycle failed: %v", err)
	}
	t := res.Totals()
	status := "finished"
	if res.HardFailure() {
		status = "FAILED"
	}
	return fmt.Sprintf("Cycle %s (%s) %s: inserted=%d updated=%d failed=%d",
		res.ID.String()[:8], res.Kind, status, t.Inserted, t.Updated, t.Failed)
}

// Runs handles /runs [N].
func (h *AdminHandlers) Runs(ctx context.Context, senderID int64, args []string) string {
	if !h.authorized(senderID, "/runs") {
		return msgUnauthorized
	}
	limit := defaultRunsShown
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return "Invalid format. Use: /runs [N]"
		}
		limit = min(n, maxRunsShown)
	}

	runs, err := h.cycles.RecentRuns(ctx, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list runs")
		return fmt.Sprintf("Failed to list runs: %v", err)
	}
	if len(runs) == 0 {
		return "No cycles have run yet."
	}

	var b strings.Builder
	b.WriteString("--- Recent cycles ---")
	for _, r := range runs {
		status := "OK"
		if r.Error != "" {
			status = "ERROR: " + r.Error
		}
		fmt.Fprintf(&b, "\n%s %s ins=%d upd=%d fail=%d %s",
			r.StartedAt.UTC().Format("2006-01-02 15:04"), r.Kind,
			r.Totals.Inserted, r.Totals.Updated, r.Totals.Failed, status)
	}
	return b.String()
}

// AddSubscriber handles /add_subscriber <email> <STATES,...> <CATEGORIES,...>.
func (h *AdminHandlers) AddSubscriber(ctx context.Context, senderID int64, args []string) string {
	if !h.authorized(senderID, "/add_subscriber") {
		return msgUnauthorized
	}
	email, states, categories, ok := parseSubscriberArgs(args)
	if !ok {
		return "Invalid format. Use: /add_subscriber <email> <STATES,...> <CATEGORIES,...>"
	}

	p, err := h.admin.AddSubscriber(ctx, senderID, email, states, categories)
	if err != nil {
		return h.subscriberError("/add_subscriber", email, err)
	}
	h.log.WithField("email", p.Email).Info("Subscriber added")
	return fmt.Sprintf("Subscriber %s added.\n%s", p.Email, describePreference(p))
}

// UpdateSubscriber handles /update_subscriber <email> <STATES,...> <CATEGORIES,...>.
func (h *AdminHandlers) UpdateSubscriber(ctx context.Context, senderID int64, args []string) string {
	if !h.authorized(senderID, "/update_subscriber") {
		return msgUnauthorized
	}
	email, states, categories, ok := parseSubscriberArgs(args)
	if !ok {
		return "Invalid format. Use: /update_subscriber <email> <STATES,...> <CATEGORIES,...>"
	}

	p, err := h.admin.UpdateSubscriber(ctx, senderID, email, states, categories)
	if err != nil {
		return h.subscriberError("/update_subscriber", email, err)
	}
	h.log.WithField("email", p.Email).Info("Subscriber updated")
	return fmt.Sprintf("Subscriber %s updated.\n%s", p.Email, describePreference(p))
}

// RemoveSubscriber handles /remove_subscriber <email>.
func (h *AdminHandlers) RemoveSubscriber(ctx context.Context, senderID int64, args []string) string {
	if !h.authorized(senderID, "/remove_subscriber") {
		return msgUnauthorized
	}
	if len(args) != 1 {
		return "Invalid format. Use: /remove_subscriber <email>"
	}

	if err := h.admin.RemoveSubscriber(ctx, senderID, args[0]); err != nil {
		return h.subscriberError("/remove_subscriber", args[0], err)
	}
	h.log.WithField("email", args[0]).Info("Subscriber removed")
	return fmt.Sprintf("Subscriber %s removed.", args[0])
}

// ListSubscribers handles /list_subscribers.
func (h *AdminHandlers) ListSubscribers(ctx context.Context, senderID int64, args []string) string {
	if !h.authorized(senderID, "/list_subscribers") {
		return msgUnauthorized
	}
	prefs, invalid, err := h.admin.ListSubscribers(ctx, senderID)
	if err != nil {
		h.log.WithError(err).Error("Failed to list subscribers")
		return fmt.Sprintf("Failed to list subscribers: %v", err)
	}
	if len(prefs) == 0 && invalid == 0 {
		return "No subscribers found."
	}

	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Email < prefs[j].Email })
	var b strings.Builder
	fmt.Fprintf(&b, "--- Subscribers (%d) ---", len(prefs))
	for _, p := range prefs {
		fmt.Fprintf(&b, "\n%s\n  %s", p.Email, describePreference(p))
	}
	if invalid > 0 {
		fmt.Fprintf(&b, "\n%d subscriber(s) have unreadable preferences.", invalid)
	}
	return b.String()
}

func (h *AdminHandlers) subscriberError(handler, email string, err error) string {
	log := h.log.WithFields(logrus.Fields{"handler": handler, "email": email}).WithError(err)
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		log.Warn("Admin not authorized (service level)")
		return msgUnauthorized
	case errors.Is(err, app.ErrInvalidSubscriber):
		log.Warn("Invalid subscriber")
		return "Error: a valid email, at least one state and at least one category are required."
	case errors.Is(err, app.ErrSubscriberAlreadyExists):
		log.Warn("Subscriber already exists")
		return fmt.Sprintf("Error: subscriber %s already exists.", email)
	case errors.Is(err, subscriber.ErrNotFound):
		log.Warn("Subscriber not found")
		return fmt.Sprintf("Subscriber %s not found.", email)
	default:
		log.Error("Subscriber command failed")
		return fmt.Sprintf("An error occurred: %v", err)
	}
}

// parseSubscriberArgs reads "<email> <STATES,...> <CATEGORIES,...>". Categories may
// contain spaces, so everything after the states argument is one comma list.
func parseSubscriberArgs(args []string) (email string, states, categories []string, ok bool) {
	if len(args) < 3 {
		return "", nil, nil, false
	}
	return args[0], splitList(args[1]), splitList(strings.Join(args[2:], " ")), true
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func describePreference(p *subscriber.Preference) string {
	return fmt.Sprintf("States: %s; Categories: %s",
		strings.Join(p.Jurisdictions, ", "), strings.Join(p.Categories, ", "))
}
