package xlm

import (
	"strconv"
	"unicode/utf8"

	"github.com/stellar/go-stellar-sdk/txnbuild"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// MaxMemoTextLen is the byte limit of a text memo.
const MaxMemoTextLen = 28

// MemoType selects how a memo is encoded.
type MemoType uint32

// Memo types.
const (
	MemoNone MemoType = 0
	MemoText MemoType = 1
	MemoID   MemoType = 2
)

// Memo is a transaction memo.
type Memo struct {
	Type MemoType
	Text string
	ID   uint64
}

// String returns the memo as the user entered it.
func (m Memo) String() string {
	switch m.Type {
	case MemoText:
		return m.Text
	case MemoID:
		return strconv.FormatUint(m.ID, 10)
	default:
		return ""
	}
}

// txnMemo converts m for the transaction builder. It is nil for no memo.
func (m Memo) txnMemo() txnbuild.Memo {
	switch m.Type {
	case MemoText:
		return txnbuild.MemoText(m.Text)
	case MemoID:
		return txnbuild.MemoID(m.ID)
	default:
		return nil
	}
}

// ParseMemo reads user input. Digits that fit in 64 bits become an id memo,
// which is what exchanges expect for deposit tags; anything else is text.
func ParseMemo(s string) (Memo, error) {
	if s == "" {
		return Memo{}, nil
	}
	if id, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Memo{Type: MemoID, ID: id}, nil
	}
	return NewTextMemo(s)
}

// NewTextMemo builds a text memo of at most MaxMemoTextLen bytes.
func NewTextMemo(s string) (Memo, error) {
	if len(s) > MaxMemoTextLen || !utf8.ValidString(s) {
		return Memo{}, coreerr.WithDetails(coreerr.ErrInvalidMemo, map[string]string{
			"field": "memo",
			"limit": strconv.Itoa(MaxMemoTextLen) + " bytes",
		})
	}
	return Memo{Type: MemoText, Text: s}, nil
}
