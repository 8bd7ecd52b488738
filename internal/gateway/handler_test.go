package gateway

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"lookup-gateway/internal/cache"
	"lookup-gateway/internal/classifier"
	"lookup-gateway/internal/ingress"
	"lookup-gateway/internal/observability"
	"lookup-gateway/internal/queue"
	"lookup-gateway/internal/quota"
)

// testMetrics is shared across every test in this file: NewMetrics
// registers its collectors against the default Prometheus registerer,
// and a second call in the same process panics on duplicate
// registration.
var (
	testMetricsOnce sync.Once
	testMetrics     *observability.Metrics
)

func sharedTestMetrics() *observability.Metrics {
	testMetricsOnce.Do(func() { testMetrics = observability.NewMetrics() })
	return testMetrics
}

// newTestHandler wires a real Gateway (bbolt cache, real quota, no
// breaker/limiter/driver/audit) behind a Handler, driven by a stub
// Processor so tests never touch a live upstream driver. OK results
// are written to the cache, as Gateway.process does.
func newTestHandler(t *testing.T, process queue.Processor, maxPerHour int) (*Handler, *ingress.Memory) {
	t.Helper()

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("cache.Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	q := queue.New(10, zap.NewNop())
	gw := New(Config{}, q, c, quota.New(zap.NewNop(), maxPerHour), nil, nil, nil, nil, sharedTestMetrics(), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx, func(ctx context.Context, job *queue.Job) queue.JobResult {
		r := process(ctx, job)
		if r.Status == classifier.StatusOK {
			c.Set(cacheKey(job.INN, job.FIO), r.SafeText)
		}
		return r
	})
	t.Cleanup(q.Stop)

	front := ingress.NewMemory()
	return NewHandler(gw, front, zap.NewNop()), front
}

func alwaysOK(phone, email string) queue.Processor {
	return func(ctx context.Context, job *queue.Job) queue.JobResult {
		return queue.JobResult{
			INN: job.INN, FIO: job.FIO, Phone: phone, Email: email,
			Status:   classifier.StatusOK,
			SafeText: "📄 Краткая сводка\nФИО: " + job.FIO + "\nТелефон: " + phone + "\nEmail: " + email,
		}
	}
}

func TestOnTextHelpMessage(t *testing.T) {
	h, front := newTestHandler(t, alwaysOK("+7000", "a@x.ru"), 10)

	h.OnText(context.Background(), 1, 100, "/start")

	if len(front.Sent) != 1 || front.Sent[0].Text != helpMessage {
		t.Fatalf("Sent = %+v, want help message", front.Sent)
	}
}

func TestOnTextInvalidFormat(t *testing.T) {
	h, front := newTestHandler(t, alwaysOK("+7000", "a@x.ru"), 10)

	h.OnText(context.Background(), 1, 100, "not a valid request")

	if len(front.Sent) != 1 || front.Sent[0].Text != invalidFormatMessage {
		t.Fatalf("Sent = %+v, want invalid format message", front.Sent)
	}
}

func TestOnTextHappyPath(t *testing.T) {
	h, front := newTestHandler(t, alwaysOK("+70001112233", "ivanov@x.ru"), 10)

	h.OnText(context.Background(), 1, 100, "2222058686; Иванов Иван Иванович")

	if len(front.Sent) != 1 {
		t.Fatalf("Sent = %+v, want exactly one reply", front.Sent)
	}
	if front.Sent[0].ChatID != 100 {
		t.Fatalf("ChatID = %d, want 100", front.Sent[0].ChatID)
	}
	if front.Sent[0].Text == "" {
		t.Fatal("reply text empty")
	}
}

func TestOnTextCacheHitShortCircuitsQueue(t *testing.T) {
	calls := 0
	h, front := newTestHandler(t, func(ctx context.Context, job *queue.Job) queue.JobResult {
		calls++
		return queue.JobResult{INN: job.INN, FIO: job.FIO, Status: classifier.StatusOK, SafeText: "из очереди"}
	}, 10)

	h.OnText(context.Background(), 1, 100, "2222058686; Иванов Иван")
	h.OnText(context.Background(), 1, 100, "2222058686; Иванов Иван")

	if calls != 1 {
		t.Fatalf("worker invoked %d times, want 1 (second lookup should hit cache)", calls)
	}
	if len(front.Sent) != 2 {
		t.Fatalf("Sent = %+v, want two replies", front.Sent)
	}
}

func TestOnTextQuotaRejected(t *testing.T) {
	h, front := newTestHandler(t, alwaysOK("+7000", "a@x.ru"), 1)

	h.OnText(context.Background(), 1, 100, "2222058686; Иванов Иван")
	h.OnText(context.Background(), 1, 100, "3333333333; Петров Петр")

	if len(front.Sent) != 2 {
		t.Fatalf("Sent = %+v, want two replies", front.Sent)
	}
	if front.Sent[1].Text == "" {
		t.Fatal("quota rejection reply empty")
	}
}

func TestOnDocumentHappyPath(t *testing.T) {
	h, front := newTestHandler(t, alwaysOK("+70001112233", "a@x.ru"), 10)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "ИНН")
	f.SetCellValue(sheet, "B1", "ФИО")
	f.SetCellValue(sheet, "A2", "2222058686")
	f.SetCellValue(sheet, "B2", "Иванов Иван")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	f.Close()

	handle := ingress.FileHandle("doc-1")
	front.Bytes[handle] = buf.Bytes()

	h.OnDocument(context.Background(), 1, 100, handle)

	if len(front.Files) != 1 {
		t.Fatalf("Files = %+v, want exactly one output workbook", front.Files)
	}
	if front.Files[0].ChatID != 100 {
		t.Fatalf("ChatID = %d, want 100", front.Files[0].ChatID)
	}
}

func TestOnDocumentProducesPendingOnLimit(t *testing.T) {
	calls := 0
	h, front := newTestHandler(t, func(ctx context.Context, job *queue.Job) queue.JobResult {
		calls++
		return queue.JobResult{INN: job.INN, FIO: job.FIO, Status: classifier.StatusLimit, SafeText: "limit"}
	}, 10)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "ИНН")
	f.SetCellValue(sheet, "B1", "ФИО")
	f.SetCellValue(sheet, "A2", "2222058686")
	f.SetCellValue(sheet, "B2", "Иванов Иван")
	f.SetCellValue(sheet, "A3", "3333333333")
	f.SetCellValue(sheet, "B3", "Петров Петр")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	f.Close()

	handle := ingress.FileHandle("doc-2")
	front.Bytes[handle] = buf.Bytes()

	h.OnDocument(context.Background(), 1, 100, handle)

	if len(front.Files) != 2 {
		t.Fatalf("Files = %+v, want output + pending workbooks", front.Files)
	}
	if calls != 1 {
		t.Fatalf("worker invoked %d times, want 1 (second row should stop admission after the LIMIT)", calls)
	}
}
