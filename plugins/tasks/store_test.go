package tasksplugin

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "tomobot/pkg/logx"
)

func newStore(t *testing.T) *taskStore {
	t.Helper()
	st, err := openTaskStore(filepath.Join(t.TempDir(), "tasks.db"), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestTaskStoreAddListDone(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	id, err := st.Add(ctx, Task{ChatID: -100, CreatedBy: 42, Title: "議事録"})
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("want autoincrement id")
	}

	tasks, err := st.List(ctx, -100, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Title != "議事録" || tasks[0].Priority != "medium" || !tasks[0].Open() {
		t.Fatalf("got %+v", tasks)
	}

	if err := st.SetDone(ctx, -100, id, time.Now()); err != nil {
		t.Fatal(err)
	}
	tasks, _ = st.List(ctx, -100, false)
	if len(tasks) != 0 {
		t.Fatal("done task must not appear in open list")
	}
	tasks, _ = st.List(ctx, -100, true)
	if len(tasks) != 1 || tasks[0].Open() || tasks[0].DoneAt == nil {
		t.Fatalf("got %+v", tasks)
	}

	// Completing twice reports not found.
	if err := st.SetDone(ctx, -100, id, time.Now()); err != ErrTaskNotFound {
		t.Fatalf("second done: %v", err)
	}
}

func TestTaskStoreOrdersByPriorityThenDue(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(72 * time.Hour)

	mustAdd := func(task Task) {
		t.Helper()
		if _, err := st.Add(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	mustAdd(Task{ChatID: -100, CreatedBy: 1, Title: "low", Priority: "low"})
	mustAdd(Task{ChatID: -100, CreatedBy: 1, Title: "high-later", Priority: "high", Due: &later})
	mustAdd(Task{ChatID: -100, CreatedBy: 1, Title: "high-soon", Priority: "high", Due: &soon})
	mustAdd(Task{ChatID: -100, CreatedBy: 1, Title: "mid", Priority: "medium"})

	tasks, err := st.List(ctx, -100, false)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, task := range tasks {
		got = append(got, task.Title)
	}
	want := []string{"high-soon", "high-later", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestTaskStoreScopedByChat(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	if _, err := st.Add(ctx, Task{ChatID: -100, CreatedBy: 1, Title: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Add(ctx, Task{ChatID: -200, CreatedBy: 1, Title: "b"}); err != nil {
		t.Fatal(err)
	}

	tasks, _ := st.List(ctx, -100, true)
	if len(tasks) != 1 || tasks[0].Title != "a" {
		t.Fatalf("chat isolation broken: %+v", tasks)
	}
	if _, err := st.Get(ctx, -100, tasks[0].ID+1); err != ErrTaskNotFound {
		t.Fatalf("cross-chat get: %v", err)
	}
}

func TestTaskStoreDueBetween(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Now()
	in1 := now.Add(24 * time.Hour)
	in5 := now.Add(5 * 24 * time.Hour)

	if _, err := st.Add(ctx, Task{ChatID: -100, CreatedBy: 1, Title: "due-soon", Due: &in1}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Add(ctx, Task{ChatID: -100, CreatedBy: 1, Title: "due-later", Due: &in5}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Add(ctx, Task{ChatID: -100, CreatedBy: 1, Title: "no-due"}); err != nil {
		t.Fatal(err)
	}

	due, err := st.DueBetween(ctx, now, now.AddDate(0, 0, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].Title != "due-soon" {
		t.Fatalf("got %+v", due)
	}
}

func TestVisibleFiltersOtherUsersPrivateTasks(t *testing.T) {
	pred := func(chatID, userID int64, feature string) bool {
		return userID == 7 && feature == "tasks"
	}
	p := New(pred)
	tasks := []Task{
		{ID: 1, CreatedBy: 7, Title: "private"},
		{ID: 2, CreatedBy: 8, Title: "shared"},
	}

	got := p.visible(append([]Task(nil), tasks...), -100, 9)
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("viewer 9 sees %+v", got)
	}

	// The owner still sees their own private task.
	got = p.visible(append([]Task(nil), tasks...), -100, 7)
	if len(got) != 2 {
		t.Fatalf("owner sees %+v", got)
	}
}
