package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// Publisher receives committed row changes. *realtime.Hub implements it.
type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) (realtime.Event, error)
}

// publish emits a change event. Realtime delivery is best effort: failures
// are logged and never fail the write that produced them.
func publish(ctx context.Context, p Publisher, table string, typ realtime.EventType, record, old any, audience ...string) {
	if p == nil {
		return
	}
	ev, err := realtime.NewEvent(table, typ, record, old, audience...)
	if err == nil {
		_, err = p.Publish(context.WithoutCancel(ctx), ev)
	}
	if err != nil && !errors.Is(err, realtime.ErrClosed) {
		log.Warn().Err(err).Str("table", table).Str("type", string(typ)).Msg("realtime publish failed")
	}
}

var (
	crlfRE      = regexp.MustCompile(`\r\n?`)
	blankRunsRE = regexp.MustCompile(`\n{3,}`)
)

// normalizeContent converts CRLF to LF, collapses runs of blank lines to a
// single blank line and trims surrounding whitespace.
func normalizeContent(s string) string {
	s = crlfRE.ReplaceAllString(s, "\n")
	s = blankRunsRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// validateText normalizes s and enforces 1..maxRunes runes (maxRunes <= 0
// disables the upper bound).
func validateText(s string, maxRunes int) (string, error) {
	s = normalizeContent(s)
	if s == "" {
		return "", ErrEmptyContent
	}
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		return "", ErrTooLong
	}
	return s, nil
}

// page clamps a limit/offset pair.
func page(limit, offset, def, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func isNotFound(err error) bool { return errors.Is(err, repo.ErrNotFound) }
