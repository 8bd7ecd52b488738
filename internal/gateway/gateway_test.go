package gateway

import (
	"testing"

	"lookup-gateway/internal/upstream"
)

func TestCacheKeyCanonicalizesFIO(t *testing.T) {
	a := cacheKey("2222058686", "  Маркова   Ольга  Викторовна ")
	b := cacheKey("2222058686", "маркова ольга викторовна")
	if a != b {
		t.Fatalf("cacheKey() not canonicalized: %q vs %q", a, b)
	}
	want := "inn:2222058686|fio:маркова ольга викторовна"
	if a != want {
		t.Fatalf("cacheKey() = %q, want %q", a, want)
	}
}

func TestSplitProjectionRecoversFields(t *testing.T) {
	text := "📄 Краткая сводка\nФИО: Иванов Иван\nТелефон: +7000\nEmail: i@x.ru"
	fio, phone, email := splitProjection(text)
	if fio != "Иванов Иван" || phone != "+7000" || email != "i@x.ru" {
		t.Fatalf("splitProjection() = %q/%q/%q", fio, phone, email)
	}
}

func TestSplitProjectionHandlesMissingFields(t *testing.T) {
	text := "📄 Краткая сводка\nФИО: Иванов Иван"
	fio, phone, email := splitProjection(text)
	if fio != "Иванов Иван" {
		t.Fatalf("fio = %q", fio)
	}
	if phone != "" || email != "" {
		t.Fatalf("phone/email should be empty, got %q/%q", phone, email)
	}
}

func TestNotFoundMessageListsUpTo30Labels(t *testing.T) {
	controls := make([]upstream.Control, 40)
	for i := range controls {
		controls[i] = upstream.Control{Row: 0, Col: i, Label: "label"}
	}
	msg := notFoundMessage(controls)
	count := 0
	for _, line := range []rune(msg) {
		if line == '\n' {
			count++
		}
	}
	// header line + up to 30 labels => 30 newlines expected (1 after header, 29 between labels)
	if count != maxListedLabels {
		t.Fatalf("got %d newlines, want %d", count, maxListedLabels)
	}
}

func TestNotFoundMessageEmptyControls(t *testing.T) {
	msg := notFoundMessage(nil)
	if msg == "" {
		t.Fatal("notFoundMessage() returned empty string")
	}
}
