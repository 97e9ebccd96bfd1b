package reminderplugin

import (
	"fmt"
	"time"

	"tomobot/internal/reminder"
	"tomobot/pkg/tgui"
)

func fmtWhen(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func mentionCount(n int) string {
	if n == 0 {
		return "スレッド参加者なし"
	}
	return fmt.Sprintf("%d人にメンション", n)
}

func confirmPrompt(n int) string {
	return fmt.Sprintf("登録中の %d 件を全て削除します。よろしいですか？", n)
}

func clearedText(n int) string {
	return fmt.Sprintf("%d 件のリマインダーを削除しました。", n)
}

// listMessage renders the owner's reminders sorted by target time.
// Output is capped at limit entries with a trailing remainder count.
func listMessage(items []reminder.Reminder, limit int) tgui.Message {
	b := tgui.New().Title("⏰", "リマインダー一覧")

	shown := items
	if limit > 0 && len(items) > limit {
		shown = items[:limit]
	}
	for _, r := range shown {
		line := tgui.JoinH(" ", tgui.Code(r.ShortID()), tgui.Esc(fmtWhen(r.At)), tgui.Esc(r.Message))
		b.RawLine(line.String())
	}
	if rest := len(items) - len(shown); rest > 0 {
		b.Blank()
		b.Line(fmt.Sprintf("他 %d 件。削除は /remind delete <ID> でどうぞ。", rest))
	}
	return b.Build()
}
