package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/storage"
)

var ErrUnauthorized = errors.New("unauthorized")

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// principalFromToken resolves the bearer token carried in a request body to a
// user row. Any decode failure or unknown id yields ErrUnauthorized.
func principalFromToken(token string, jwt *auth.JwtManager, db *gorm.DB) (schema.User, error) {
	userId := jwt.UserIdFromToken(token)
	if userId == auth.NoUser {
		return schema.User{}, CodedError(ErrUnauthorized, http.StatusUnauthorized)
	}

	user, err := schema.GetUser(uint(userId), db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return schema.User{}, CodedError(ErrUnauthorized, http.StatusUnauthorized)
		}
		return schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	return user, nil
}

func checkUserExists(txn *gorm.DB, userId uint) error {
	if _, err := schema.GetUser(userId, txn); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkCollectionExists(txn *gorm.DB, collectionId uint) error {
	if _, err := schema.GetCollection(collectionId, txn); err != nil {
		if errors.Is(err, schema.ErrCollectionNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkDiskUsage(storage storage.Storage) error {
	stats, err := storage.Usage()
	if err != nil {
		slog.Error("unable to get disk usage from storage", "error", err)
		return CodedError(errors.New("unable to get disk usage"), http.StatusInternalServerError)
	}
	oneMib := uint64(1024 * 1024)
	// Either 20% disk needs to be free or 20Gb (in case the disk is very large)
	threshold := min(stats.TotalBytes/5, 20*1024*oneMib)
	if stats.FreeBytes < threshold {
		used := (stats.TotalBytes - stats.FreeBytes) / oneMib
		total := stats.TotalBytes / oneMib
		delta := (threshold - stats.FreeBytes) / oneMib
		return CodedError(fmt.Errorf("insufficient disk space available, usage: %d/%d Mib, please clear %d Mib", used, total, delta), http.StatusInsufficientStorage)
	}
	return nil
}

func checkSufficientStorage(storage storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			if err := checkDiskUsage(storage); err != nil {
				slog.Error(err.Error())
				http.Error(w, err.Error(), GetResponseCode(err))
				return
			}
			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}
}
