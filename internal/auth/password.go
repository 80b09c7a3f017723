package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"campusconnect/internal/apperr"
)

type hashResult struct {
	hash []byte
	err  error
}

// HashPassword bcrypt-hashes pw. It returns early with ctx.Err() if the
// context ends first; the hashing goroutine finishes on its own.
func HashPassword(ctx context.Context, pw string) (string, error) {
	done := make(chan hashResult, 1)
	go func() {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		done <- hashResult{hash: h, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		return string(r.hash), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CheckPassword compares pw with a bcrypt hash. A mismatch is an authentication error.
func CheckPassword(ctx context.Context, hash, pw string) error {
	done := make(chan error, 1)
	go func() {
		done <- bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	}()
	select {
	case err := <-done:
		if err != nil {
			return apperr.Authentication("invalid credentials")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
