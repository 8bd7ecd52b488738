package classifier

import "testing"

func TestClassifyLimitWinsOverSummary(t *testing.T) {
	collected := []string{
		"📄 Краткая сводка\nФИО: Иванов Иван",
		"Лимит запросов на сегодня временно исчерпан.",
	}
	r := Classify("", collected, nil)
	if r.Status != StatusLimit {
		t.Fatalf("Status = %v, want LIMIT", r.Status)
	}
}

func TestClassifyOK(t *testing.T) {
	collected := []string{
		"📄 Краткая сводка\nФИО: Иванов Иван Иванович\nТелефон: +70000000000\nEmail: ivan@example.com\nextra line discarded",
	}
	r := Classify("", collected, nil)
	if r.Status != StatusOK {
		t.Fatalf("Status = %v, want OK", r.Status)
	}
	if r.FIO != "Иванов Иван Иванович" {
		t.Fatalf("FIO = %q", r.FIO)
	}
	if r.Phone != "+70000000000" || r.Email != "ivan@example.com" {
		t.Fatalf("Phone/Email = %q/%q", r.Phone, r.Email)
	}
	want := "📄 Краткая сводка\nФИО: Иванов Иван Иванович\nТелефон: +70000000000\nEmail: ivan@example.com"
	if r.SafeText != want {
		t.Fatalf("SafeText = %q, want %q", r.SafeText, want)
	}
}

func TestClassifyOKPartialFields(t *testing.T) {
	collected := []string{"📄 Краткая сводка\nФИО: Петров Петр"}
	r := Classify("", collected, nil)
	if r.Status != StatusOK {
		t.Fatalf("Status = %v, want OK", r.Status)
	}
	if r.Phone != "" || r.Email != "" {
		t.Fatalf("Phone/Email should be empty when absent, got %q/%q", r.Phone, r.Email)
	}
}

func TestClassifyNotFoundFromFirstReply(t *testing.T) {
	r := Classify("По вашему запросу ничего не найдено.", nil, nil)
	if r.Status != StatusNotFound {
		t.Fatalf("Status = %v, want NOT_FOUND", r.Status)
	}
}

func TestClassifyNotFoundFromLastCollectedWhenNoFirstReply(t *testing.T) {
	collected := []string{"подождите", "клиент не найден в базе"}
	r := Classify("", collected, nil)
	if r.Status != StatusNotFound {
		t.Fatalf("Status = %v, want NOT_FOUND", r.Status)
	}
}

func TestClassifyErrorFallback(t *testing.T) {
	r := Classify("какой-то непонятный ответ", nil, nil)
	if r.Status != StatusError {
		t.Fatalf("Status = %v, want ERROR", r.Status)
	}
}

func TestClassifyAppliesMask(t *testing.T) {
	masked := func(s string) string { return "***" }
	collected := []string{"📄 Краткая сводка\nТелефон: +79990000000\nEmail: x@y.com"}
	r := Classify("", collected, masked)
	if r.Phone != "***" || r.Email != "***" {
		t.Fatalf("mask not applied: phone=%q email=%q", r.Phone, r.Email)
	}
}

func TestIsLimitExhausted(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Лимит запросов исчерпан", true},
		{"лимит запросов временно исчерпан, подождите", true},
		{"лимит запросов", false},
		{"исчерпан", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsLimitExhausted(c.text); got != c.want {
			t.Errorf("IsLimitExhausted(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}
