package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

func bigFromInt64(v int64) *big.Int { return big.NewInt(v) }

// StatusMessage is the outbound, line-delimited JSON object sent to a
// model process on every scan. All numeric fields are decimal strings
// to preserve precision across the process boundary; addresses are
// 0x-prefixed hex.
type StatusMessage struct {
	ID    string `json:"id"`
	Kind  string `json:"kind_flags"`
	Bid   string `json:"bid"`
	Lot   string `json:"lot"`
	Tab   string `json:"tab,omitempty"`
	Beg   string `json:"beg"`
	Guy   string `json:"guy"`
	Era   string `json:"era"`
	End   string `json:"end"`
	Tic   string `json:"tic,omitempty"`
	Price string `json:"price,omitempty"`
}

// StatusOf builds the wire Status for one auction snapshot, per §4.3.
func StatusOf(a *Auction) StatusMessage {
	msg := StatusMessage{
		ID:   a.ID.String(),
		Kind: a.Kind.String(),
		Bid:  a.Bid.String(),
		Lot:  a.Lot.String(),
		Beg:  a.Beg.String(),
		Guy:  a.Guy.Hex(),
		Era:  strconv.FormatInt(a.Era.Unix(), 10),
		End:  strconv.FormatInt(a.End.Unix(), 10),
	}
	if !a.Tab.IsZero() {
		msg.Tab = a.Tab.String()
	}
	if !a.Tic.IsZero() {
		msg.Tic = strconv.FormatInt(a.Tic.Unix(), 10)
	}
	if p := a.Price(); !p.IsZero() {
		msg.Price = p.String()
	}
	return msg
}

// MarshalLine renders the Status as a single newline-terminated JSON
// line, the unit the model's stdin feed is built from.
func (s StatusMessage) MarshalLine() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}
	return append(b, '\n'), nil
}

// StanceMessage is the inbound, line-delimited JSON object read from a
// model process's stdout. A nil/absent Price means "do not bid".
type StanceMessage struct {
	Price    *string `json:"price"`
	GasPrice *int64  `json:"gas_price,omitempty"`
}

// ParseStance decodes one line of model stdout into a Stance. A parse
// failure is the ModelMalformed error kind (§7): the caller drops the
// line and continues without updating the authoritative stance.
func ParseStance(line []byte) (Stance, error) {
	var msg StanceMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return Stance{}, fmt.Errorf("malformed stance: %w", err)
	}
	st := Stance{}
	if msg.Price != nil && *msg.Price != "" {
		price, err := ParseRay(*msg.Price)
		if err != nil {
			return Stance{}, fmt.Errorf("malformed stance price %q: %w", *msg.Price, err)
		}
		st.Price = &price
	}
	if msg.GasPrice != nil {
		gp := bigFromInt64(*msg.GasPrice)
		st.GasPrice = gp
	}
	return st, nil
}
