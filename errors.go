/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/whogotwho/game"
	"github.com/Seednode/whogotwho/uploads"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", html.EscapeString(body)))

	return htmlBody.String()
}

// publicError is what players see for a failed request.
type publicError struct {
	status  int
	kind    string
	message string
}

func describeError(cfg *Config, err error) publicError {
	var gameErr *game.Error
	if errors.As(err, &gameErr) {
		pe := publicError{kind: string(gameErr.Kind), message: gameErr.Message}
		switch gameErr.Kind {
		case game.KindNotFound:
			pe.status = http.StatusNotFound
		case game.KindUnauthorized:
			pe.status = http.StatusForbidden
		case game.KindDuplicateName, game.KindAlreadyCompleted, game.KindConflict:
			pe.status = http.StatusConflict
		case game.KindGameFull, game.KindPrecondition:
			pe.status = http.StatusUnprocessableEntity
		case game.KindInvalid:
			pe.status = http.StatusBadRequest
		default:
			logf(cfg, "ERROR: %v", err)
			pe.status = http.StatusInternalServerError
		}
		return pe
	}

	for _, uploadErr := range []error{uploads.ErrEmpty, uploads.ErrTooLarge, uploads.ErrNotImage, uploads.ErrBadPath} {
		if errors.Is(err, uploadErr) {
			return publicError{status: http.StatusBadRequest, kind: string(game.KindInvalid), message: uploadErr.Error()}
		}
	}

	logf(cfg, "ERROR: %v", err)
	return publicError{status: http.StatusInternalServerError, kind: "internal", message: "something went wrong, please try again"}
}
