package rest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

// idempotencyKeyHeader — заголовок, включающий идемпотентную обработку запроса.
const idempotencyKeyHeader = "Idempotency-Key"

// idempotencyTTL — срок хранения ключа; по истечении ключ можно переиспользовать.
const idempotencyTTL = 24 * time.Hour

// idempotent оборачивает обработчик протоколом Idempotency-Key.
//
// Запрос без заголовка обрабатывается как обычно. Повтор с тем же ключом
// и тем же телом получает сохранённый ответ; тот же ключ с другим телом
// отклоняется, незавершённая обработка отдаёт 409.
func idempotent(repo domain.IdempotencyRepository, logger *log.Entry, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if key == "" || repo == nil {
			next(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := requestHash(r.Method, r.URL.Path, body)
		record, err := repo.CreateProcessing(key, hash, time.Now().UTC().Add(idempotencyTTL))
		switch {
		case err == nil:
			// Первый запрос с этим ключом, обрабатываем и сохраняем ответ.
		case errors.Is(err, domain.ErrIdempotencyHashMismatch),
			errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && record.RequestHash != hash:
			writeFailure(w, http.StatusUnprocessableEntity, domain.ErrIdempotencyHashMismatch.Error())
			return
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
			replay(w, record)
			return
		default:
			logger.WithError(err).Warn("idempotency key registration failed")
			writeFailure(w, http.StatusInternalServerError, "idempotency processing failed")
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		if rec.status < http.StatusInternalServerError && rec.status != http.StatusConflict {
			err = repo.MarkDone(key, rec.body.Bytes(), rec.status)
		} else {
			err = repo.MarkFailed(key, rec.body.Bytes(), rec.status)
		}
		if err != nil {
			logger.WithError(err).WithField("key", key).Warn("failed to persist idempotent response")
		}
	}
}

// replay отдаёт сохранённый ответ либо сообщает, что обработка ещё идёт.
func replay(w http.ResponseWriter, record domain.IdempotencyRecord) {
	if record.Status == domain.IdempotencyStatusProcessing {
		writeFailure(w, http.StatusConflict, "request with this idempotency key is still being processed")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Idempotency-Replayed", "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// responseRecorder дублирует ответ в буфер для последующего replay.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
