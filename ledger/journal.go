package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/shopspring/decimal"
)

// The journal is a JSONL file, one record per line. An "open" record creates
// an account, a "commit" record carries the state of an account after a
// successful Update: the new cash, the touched holdings and the appended orders.
//
//	{"command":"open","id":"…","email":"a@x.com","cash":100000,"currency":"INR",…}
//	{"command":"commit","account":"…","cash":65000,"realizedPL":0,"currency":"INR","holdings":[…],"orders":[…]}

type commandType string

const (
	cmdOpen   commandType = "open"
	cmdCommit commandType = "commit"
)

type openCmd struct {
	Command      commandType     `json:"command"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone,omitempty"`
	PasswordHash string          `json:"passwordHash"`
	Cash         decimal.Decimal `json:"cash"`
	Currency     string          `json:"currency"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (c openCmd) Account() wealthmind.Account {
	return wealthmind.Account{
		ID:           c.ID,
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		PasswordHash: c.PasswordHash,
		Cash:         wealthmind.M(c.Cash, c.Currency),
		RealizedPL:   wealthmind.M(0, c.Currency),
		CreatedAt:    c.CreatedAt,
	}
}

type holdingCmd struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avgCost"`
}

type commitCmd struct {
	Command    commandType        `json:"command"`
	Account    string             `json:"account"`
	Cash       decimal.Decimal    `json:"cash"`
	RealizedPL decimal.Decimal    `json:"realizedPL"`
	Currency   string             `json:"currency"`
	Holdings   []holdingCmd       `json:"holdings,omitempty"`
	Orders     []wealthmind.Order `json:"orders,omitempty"`
}

// Journal appends ledger records to a writer. It is safe for concurrent use.
type Journal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJournal returns a Journal writing to w.
func NewJournal(w io.Writer) *Journal { return &Journal{w: w} }

func (j *Journal) open(a wealthmind.Account) error {
	return j.write(openCmd{
		Command:      cmdOpen,
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Phone:        a.Phone,
		PasswordHash: a.PasswordHash,
		Cash:         a.Cash.Decimal(),
		Currency:     a.Cash.Currency(),
		CreatedAt:    a.CreatedAt,
	})
}

func (j *Journal) commit(a wealthmind.Account, holdings []wealthmind.Holding, orders []wealthmind.Order) error {
	cmd := commitCmd{
		Command:    cmdCommit,
		Account:    a.ID,
		Cash:       a.Cash.Decimal(),
		RealizedPL: a.RealizedPL.Decimal(),
		Currency:   a.Cash.Currency(),
		Orders:     orders,
	}
	for _, h := range holdings {
		cmd.Holdings = append(cmd.Holdings, holdingCmd{Symbol: h.Symbol, Quantity: h.Quantity, AvgCost: h.AvgCost.Decimal()})
	}
	return j.write(cmd)
}

// write encodes v on a single line. The line is written in one call so that
// records never interleave. A partially written line is truncated away when
// the writer supports it.
func (j *Journal) write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode journal record: %w", err)
	}
	line = append(line, '\n')
	j.mu.Lock()
	defer j.mu.Unlock()
	n, err := j.w.Write(line)
	if err != nil {
		if n > 0 {
			j.rollback(int64(n))
		}
		return fmt.Errorf("could not write journal record: %w", err)
	}
	return nil
}

// rollback removes the last n bytes written to a file.
func (j *Journal) rollback(n int64) {
	f, ok := j.w.(interface {
		Seek(offset int64, whence int) (int64, error)
		Truncate(size int64) error
	})
	if !ok {
		return
	}
	if end, err := f.Seek(0, io.SeekEnd); err == nil && end >= n {
		_ = f.Truncate(end - n)
	}
}

// DecodeJournal replays the records read from r into m.
//
// Records are newline terminated, a trailing unterminated line is the
// remainder of an interrupted write and is ignored.
func DecodeJournal(r io.Reader, m *Memory) error {
	_, err := decodeJournal(r, m)
	return err
}

// decodeJournal replays r into m and returns the length of the valid
// prefix of r, that is without the trailing unterminated line.
func decodeJournal(r io.Reader, m *Memory) (int64, error) {
	reader := bufio.NewReader(r)
	var valid int64
	line := 0
	for {
		lineBytes, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return valid, nil // torn or empty tail
		}
		if err != nil {
			return valid, fmt.Errorf("error reading from journal: %w", err)
		}
		line++
		valid += int64(len(lineBytes))
		lineBytes = bytes.TrimSpace(lineBytes)
		if len(lineBytes) == 0 {
			continue // Skip empty lines
		}
		if err := decodeRecord(lineBytes, m); err != nil {
			return valid, fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func decodeRecord(lineBytes []byte, m *Memory) error {
	var identifier struct {
		Command commandType `json:"command"`
	}
	if err := json.Unmarshal(lineBytes, &identifier); err != nil {
		return fmt.Errorf("could not identify command: %w", err)
	}

	switch identifier.Command {
	case cmdOpen:
		var cmd openCmd
		if err := json.Unmarshal(lineBytes, &cmd); err != nil {
			return err
		}
		return m.insert(cmd.Account())
	case cmdCommit:
		var cmd commitCmd
		if err := json.Unmarshal(lineBytes, &cmd); err != nil {
			return err
		}
		return m.replay(cmd)
	default:
		return fmt.Errorf("unknown journal command: %q", identifier.Command)
	}
}
