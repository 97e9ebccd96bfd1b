package reminderplugin

import (
	"context"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"tomobot/internal/plugin"
	"tomobot/internal/reminder"
	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
	"tomobot/pkg/tgui"
)

type sentText struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	sent         []sentText
	edited       []string
	participants []kit.Participant
	ready        chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	ch := make(chan struct{})
	close(ch)
	return &fakeAdapter{ready: ch}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.sent = append(f.sent, sentText{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, png []byte, caption string) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.edited = append(f.edited, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (f *fakeAdapter) History(ctx context.Context, to kit.ChatTarget, limit int) ([]kit.Participant, error) {
	if limit < len(f.participants) {
		return f.participants[:limit], nil
	}
	return f.participants, nil
}

func (f *fakeAdapter) Ready() <-chan struct{} { return f.ready }

func (f *fakeAdapter) lastText(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	return f.sent[len(f.sent)-1].text
}

func newTestPlugin(t *testing.T) (*Plugin, *fakeAdapter) {
	t.Helper()
	ad := newFakeAdapter()
	p := New()
	p.Log = logx.Nop()
	p.cfg = Config{File: "reminders.json", ListLimit: 10}
	p.store = reminder.NewMemStore()
	p.resolver = reminder.NewResolver(ad, logx.Nop())
	p.pending = tgui.NewTokenStore().WithTTL(30 * time.Second)
	return p, ad
}

func newRequest(ad *fakeAdapter, from int64, args ...string) *plugin.Request {
	return &plugin.Request{
		Chat:      kit.ChatTarget{ChatID: -100, ThreadID: 7},
		FromID:    from,
		Args:      args,
		BoolFlags: map[string]bool{},
		Adapter:   ad,
		Logger:    logx.Nop(),
	}
}

func TestCreateRelative(t *testing.T) {
	p, ad := newTestPlugin(t)
	req := newRequest(ad, 42, "30m", "休憩")

	if err := p.cmdCreate(context.Background(), req); err != nil {
		t.Fatalf("cmdCreate: %v", err)
	}

	items, err := p.store.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d reminders, want 1", len(items))
	}
	r := items[0]
	if r.OwnerID != 42 || r.Message != "休憩" {
		t.Fatalf("unexpected reminder: %+v", r)
	}
	d := time.Until(r.At)
	if d < 29*time.Minute || d > 31*time.Minute {
		t.Fatalf("target %v not ~30m ahead", d)
	}
	if !strings.Contains(ad.lastText(t), r.ShortID()) {
		t.Fatalf("reply %q missing short id %q", ad.lastText(t), r.ShortID())
	}
}

func TestCreateRelativeDefaultsMessage(t *testing.T) {
	p, ad := newTestPlugin(t)
	req := newRequest(ad, 42, "2h")

	if err := p.cmdCreate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	items, _ := p.store.ListAll()
	if len(items) != 1 || items[0].Message != reminder.DefaultMessage {
		t.Fatalf("want default message, got %+v", items)
	}
}

func TestCreateRelativeRejectsBadDuration(t *testing.T) {
	p, ad := newTestPlugin(t)
	req := newRequest(ad, 42, "abc", "x")

	if err := p.cmdCreate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	items, _ := p.store.ListAll()
	if len(items) != 0 {
		t.Fatalf("bad duration must not persist, got %d", len(items))
	}
	if !strings.Contains(ad.lastText(t), "⚠️") {
		t.Fatalf("want warning reply, got %q", ad.lastText(t))
	}
}

func TestCreateRejectsTooFarAhead(t *testing.T) {
	p, ad := newTestPlugin(t)
	req := newRequest(ad, 42, "2099-01-01", "08:00", "遠すぎ")

	if err := p.cmdCreateAt(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	items, _ := p.store.ListAll()
	if len(items) != 0 {
		t.Fatal("reminder beyond the lead window must be rejected")
	}
	if !strings.Contains(ad.lastText(t), "⚠️") {
		t.Fatalf("want warning, got %q", ad.lastText(t))
	}
}

func TestCreateAtWithDateKeyword(t *testing.T) {
	p, _ := newTestPlugin(t)
	ad := newFakeAdapter()
	req := newRequest(ad, 42, "明日", "09:00", "朝会")

	if err := p.cmdCreateAt(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	items, _ := p.store.ListAll()
	if len(items) != 1 {
		t.Fatalf("got %d reminders, want 1", len(items))
	}
	r := items[0]
	want := time.Now().AddDate(0, 0, 1)
	if r.At.Hour() != 9 || r.At.Minute() != 0 || r.At.Day() != want.Day() {
		t.Fatalf("target %v, want tomorrow 09:00", r.At)
	}
	if r.Message != "朝会" {
		t.Fatalf("message %q", r.Message)
	}
}

func TestCreateNotifySnapshotsRecipients(t *testing.T) {
	p, ad := newTestPlugin(t)
	ad.participants = []kit.Participant{
		{UserID: 1, Username: "alice"},
		{UserID: 2, Username: "bob"},
		{UserID: 3, Username: "beepboop", IsBot: true},
	}
	req := newRequest(ad, 42, "10m", "定例")
	req.BoolFlags["notify"] = true

	if err := p.cmdCreate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	items, _ := p.store.ListAll()
	if len(items) != 1 {
		t.Fatalf("got %d reminders", len(items))
	}
	r := items[0]
	if !r.Notify {
		t.Fatal("notify flag not set")
	}
	if len(r.Recipients) != 2 {
		t.Fatalf("recipients %v, want the two humans", r.Recipients)
	}
}

func seed(t *testing.T, p *Plugin, owner int64, n int, idPrefix string) []reminder.Reminder {
	t.Helper()
	now := time.Now()
	out := make([]reminder.Reminder, 0, n)
	for i := 0; i < n; i++ {
		r := reminder.New(owner, kit.ChatTarget{ChatID: -100}, "r", now.Add(time.Duration(i+1)*time.Hour), false, nil, now)
		if idPrefix != "" {
			r.ID = idPrefix + r.ID
		}
		if err := p.store.Add(r); err != nil {
			t.Fatal(err)
		}
		out = append(out, r)
	}
	return out
}

func TestListCapsAndReportsRemainder(t *testing.T) {
	p, ad := newTestPlugin(t)
	seed(t, p, 42, 12, "")
	seed(t, p, 99, 3, "") // someone else's, must not show

	req := newRequest(ad, 42)
	if err := p.cmdList(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	text := ad.lastText(t)
	if !strings.Contains(text, "他 2 件") {
		t.Fatalf("want remainder notice in %q", text)
	}
	if got := strings.Count(text, "<code>"); got != 10 {
		t.Fatalf("listed %d entries, want 10", got)
	}
}

func TestListEmpty(t *testing.T) {
	p, ad := newTestPlugin(t)
	req := newRequest(ad, 42)
	if err := p.cmdList(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ad.lastText(t), "ありません") {
		t.Fatalf("got %q", ad.lastText(t))
	}
}

func TestDeleteByPrefix(t *testing.T) {
	p, ad := newTestPlugin(t)
	items := seed(t, p, 42, 1, "")

	req := newRequest(ad, 42, items[0].ShortID())
	if err := p.cmdDelete(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	left, _ := p.store.ListAll()
	if len(left) != 0 {
		t.Fatalf("reminder not removed: %+v", left)
	}
	if !strings.Contains(ad.lastText(t), "削除しました") {
		t.Fatalf("got %q", ad.lastText(t))
	}
}

func TestDeleteAmbiguousPrefix(t *testing.T) {
	p, ad := newTestPlugin(t)
	seed(t, p, 42, 2, "aaaaaaaa")

	req := newRequest(ad, 42, "aaaaaaaa")
	if err := p.cmdDelete(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	left, _ := p.store.ListAll()
	if len(left) != 2 {
		t.Fatal("ambiguous prefix must not delete anything")
	}
	if !strings.Contains(ad.lastText(t), "複数") {
		t.Fatalf("got %q", ad.lastText(t))
	}
}

func TestDeleteNotFound(t *testing.T) {
	p, ad := newTestPlugin(t)
	seed(t, p, 99, 1, "") // other owner's reminder is invisible

	items, _ := p.store.ListAll()
	req := newRequest(ad, 42, items[0].ShortID())
	if err := p.cmdDelete(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	left, _ := p.store.ListAll()
	if len(left) != 1 {
		t.Fatal("must not delete another owner's reminder")
	}
	if !strings.Contains(ad.lastText(t), "見つかりません") {
		t.Fatalf("got %q", ad.lastText(t))
	}
}

// confirmPayload digs the clear-all token out of the inline keyboard
// of the last sent message.
func confirmPayload(t *testing.T, ad *fakeAdapter) string {
	t.Helper()
	opt := ad.sent[len(ad.sent)-1].opt
	if opt == nil || opt.ReplyMarkupAdapter == nil {
		t.Fatal("confirm message has no keyboard")
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup type %T", opt.ReplyMarkupAdapter)
	}
	data := rm.InlineKeyboard[0][0].Data
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != "reminder" || parts[1] != "clear_yes" {
		t.Fatalf("unexpected callback data %q", data)
	}
	return parts[2]
}

func callbackRequest(ad *fakeAdapter, from int64) *plugin.Request {
	return &plugin.Request{
		Update:  kit.Update{Callback: &kit.Callback{ID: "cb1", FromID: from, MessageID: 5}},
		Chat:    kit.ChatTarget{ChatID: -100, ThreadID: 7},
		FromID:  from,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func TestClearConfirmFlow(t *testing.T) {
	p, ad := newTestPlugin(t)
	seed(t, p, 42, 3, "")
	seed(t, p, 99, 1, "")

	if err := p.cmdClear(context.Background(), newRequest(ad, 42)); err != nil {
		t.Fatal(err)
	}
	tok := confirmPayload(t, ad)

	// Someone else pressing the button is ignored.
	if err := p.cbClearYes(context.Background(), callbackRequest(ad, 99), tok); err != nil {
		t.Fatal(err)
	}
	if left, _ := p.store.ListAll(); len(left) != 4 {
		t.Fatal("foreign confirm must not delete")
	}

	if err := p.cbClearYes(context.Background(), callbackRequest(ad, 42), tok); err != nil {
		t.Fatal(err)
	}
	left, _ := p.store.ListAll()
	if len(left) != 1 || left[0].OwnerID != 99 {
		t.Fatalf("clear-all left %+v", left)
	}
	if len(ad.edited) == 0 || !strings.Contains(ad.edited[len(ad.edited)-1], "3 件") {
		t.Fatalf("edited %v", ad.edited)
	}

	// Token is one-shot.
	if err := p.cbClearYes(context.Background(), callbackRequest(ad, 42), tok); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ad.edited[len(ad.edited)-1], "有効期限") {
		t.Fatalf("reused token should be expired, edited %v", ad.edited)
	}
}

func TestClearCancelKeepsReminders(t *testing.T) {
	p, ad := newTestPlugin(t)
	seed(t, p, 42, 2, "")

	if err := p.cmdClear(context.Background(), newRequest(ad, 42)); err != nil {
		t.Fatal(err)
	}
	tok := confirmPayload(t, ad)

	if err := p.cbClearNo(context.Background(), callbackRequest(ad, 42), tok); err != nil {
		t.Fatal(err)
	}
	if left, _ := p.store.ListAll(); len(left) != 2 {
		t.Fatal("cancel must keep reminders")
	}
	if !strings.Contains(ad.edited[len(ad.edited)-1], "キャンセル") {
		t.Fatalf("edited %v", ad.edited)
	}
}

func TestClearNothingRegistered(t *testing.T) {
	p, ad := newTestPlugin(t)
	if err := p.cmdClear(context.Background(), newRequest(ad, 42)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ad.lastText(t), "ありません") {
		t.Fatalf("got %q", ad.lastText(t))
	}
}
