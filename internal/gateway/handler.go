package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"lookup-gateway/internal/batch"
	"lookup-gateway/internal/classifier"
	"lookup-gateway/internal/ingress"
	"lookup-gateway/internal/queue"
)

const helpMessage = "Бот готов.\n" +
	"Вводи данные так:\n" +
	"ИНН; ФИО\n\n" +
	"Пример:\n" +
	"2222058686; Маркова Ольга Викторовна\n"

const invalidFormatMessage = "Неверный формат. Нужно: ИНН; ФИО\nПример: 2222058686; Маркова Ольга Викторовна"

// Handler implements ingress.Handler: it is the core pipeline's side of
// the §2 control-flow diagram — quota, cache-or-enqueue, wait, reply —
// driven by whatever Ingress adapter is plugged in front of it.
type Handler struct {
	gw      *Gateway
	ingress ingress.Ingress
	logger  *zap.Logger
}

// NewHandler builds a Handler bound to gw and the given Ingress.
func NewHandler(gw *Gateway, ing ingress.Ingress, logger *zap.Logger) *Handler {
	return &Handler{gw: gw, ingress: ing, logger: logger}
}

// OnText handles one incoming chat message: /start and /help emit
// usage help; anything else must parse as "ИНН; ФИО", pass the
// per-user quota, and is resolved via the cache-or-enqueue pipeline
// before its reply is sent back through the ingress adapter.
func (h *Handler) OnText(ctx context.Context, userID, chatID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if text == "/start" || text == "/help" {
		h.reply(ctx, chatID, helpMessage)
		return
	}

	inn, fio, ok := parseInnFio(text)
	if !ok {
		h.reply(ctx, chatID, invalidFormatMessage)
		return
	}

	allowed, retryAfter := h.gw.AllowUser(userID)
	if !allowed {
		mins := int(retryAfter/time.Minute) + 1
		h.reply(ctx, chatID, fmt.Sprintf("⏳ Слишком много запросов. Попробуйте через ~%d мин.", mins))
		return
	}

	job := queue.NewJob(userID, chatID, inn, fio)
	if !h.gw.Submit(job) {
		h.reply(ctx, chatID, "⚠️ Очередь запросов переполнена. Попробуйте позже.")
		return
	}

	result, err := job.Wait(ctx)
	if err != nil {
		h.logger.Warn("job wait failed", zap.Error(err), zap.Int64("user_id", userID))
		return
	}

	h.reply(ctx, chatID, result.SafeText)
}

// OnDocument handles an uploaded .xlsx: quota is charged once on
// admission (not per row), then every row is resolved through the same
// cache-or-enqueue pipeline as an interactive lookup, stopping as soon
// as a LIMIT is observed (spec §4.H). The output workbook is always
// sent; the pending workbook only if rows were left over.
func (h *Handler) OnDocument(ctx context.Context, userID, chatID int64, handle ingress.FileHandle) {
	allowed, retryAfter := h.gw.AllowUser(userID)
	if !allowed {
		mins := int(retryAfter/time.Minute) + 1
		h.reply(ctx, chatID, fmt.Sprintf("⏳ Слишком много запросов. Попробуйте через ~%d мин.", mins))
		return
	}

	data, err := h.ingress.FetchBytes(ctx, handle)
	if err != nil {
		h.logger.Warn("fetch batch file failed", zap.Error(err), zap.Int64("user_id", userID))
		h.reply(ctx, chatID, "❌ Не удалось загрузить файл.")
		return
	}

	rows, err := batch.ParseRows(data)
	if err != nil {
		h.logger.Warn("parse batch file failed", zap.Error(err), zap.Int64("user_id", userID))
		h.reply(ctx, chatID, fmt.Sprintf("❌ %v", err))
		return
	}

	assembler, err := batch.Run(ctx, rows, h.lookupRow(userID, chatID), func(p batch.Progress) {
		h.reply(ctx, chatID, fmt.Sprintf("Обработано %d из %d", p.Processed, p.Total))
	})
	if err != nil {
		h.logger.Warn("batch run failed", zap.Error(err), zap.Int64("user_id", userID))
		h.reply(ctx, chatID, "❌ Не удалось обработать файл.")
		return
	}

	ts := time.Now().Format("2006-01-02_15-04")

	outputBytes, err := assembler.BuildOutput()
	if err != nil {
		h.logger.Warn("build output workbook failed", zap.Error(err))
		return
	}
	h.sendWorkbook(ctx, chatID, outputBytes, fmt.Sprintf("output_%s.xlsx", ts))

	if assembler.HasPending() {
		pendingBytes, err := assembler.BuildPending()
		if err != nil {
			h.logger.Warn("build pending workbook failed", zap.Error(err))
			return
		}
		h.sendWorkbook(ctx, chatID, pendingBytes, fmt.Sprintf("pending_%s.xlsx", ts))
	}
}

// lookupRow adapts the Gateway's cache-or-enqueue Submit/Wait pipeline
// into the batch.Lookup shape, so a batch row resolves exactly the way
// an interactive lookup does.
func (h *Handler) lookupRow(userID, chatID int64) batch.Lookup {
	return func(ctx context.Context, inn, fio string) (phone, email string, status classifier.Status, err error) {
		job := queue.NewJob(userID, chatID, inn, fio)
		if !h.gw.Submit(job) {
			return "", "", "", fmt.Errorf("gateway: queue full")
		}

		result, err := job.Wait(ctx)
		if err != nil {
			return "", "", "", err
		}
		return result.Phone, result.Email, result.Status, nil
	}
}

// sendWorkbook spools data to a temp file and hands it to the ingress
// adapter, matching the ingress.Ingress.SendFile(path, filename) shape.
func (h *Handler) sendWorkbook(ctx context.Context, chatID int64, data []byte, filename string) {
	f, err := os.CreateTemp("", "lookup-gateway-*.xlsx")
	if err != nil {
		h.logger.Warn("create temp workbook failed", zap.Error(err))
		return
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		h.logger.Warn("write temp workbook failed", zap.Error(err))
		return
	}
	if err := f.Close(); err != nil {
		h.logger.Warn("close temp workbook failed", zap.Error(err))
		return
	}

	if err := h.ingress.SendFile(ctx, chatID, f.Name(), filename); err != nil {
		h.logger.Warn("send workbook failed", zap.Error(err), zap.String("filename", filename))
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.ingress.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn("send reply failed", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

// parseInnFio splits "ИНН; ФИО" on the first semicolon, requiring both
// parts non-empty after trimming.
func parseInnFio(text string) (inn, fio string, ok bool) {
	idx := strings.Index(text, ";")
	if idx < 0 {
		return "", "", false
	}
	inn = strings.TrimSpace(text[:idx])
	fio = strings.TrimSpace(text[idx+1:])
	if inn == "" || fio == "" {
		return "", "", false
	}
	return inn, fio, true
}
