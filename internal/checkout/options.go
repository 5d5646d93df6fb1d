package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decision is a shopper's answer to an advisory prompt.
type Decision int

const (
	Unset Decision = iota
	Accepted
	Declined
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Declined:
		return "declined"
	default:
		return "unset"
	}
}

// Ptr renders the decision as the nullable boolean used on the wire.
func (d Decision) Ptr() *bool {
	switch d {
	case Accepted:
		v := true
		return &v
	case Declined:
		v := false
		return &v
	default:
		return nil
	}
}

// MarshalJSON encodes Unset as null and the others as booleans.
func (d Decision) MarshalJSON() ([]byte, error) {
	if p := d.Ptr(); p != nil {
		return json.Marshal(*p)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts null, true or false.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decision must be true, false or null: %w", err)
	}
	*d = decisionOf(v)
	return nil
}

func decisionOf(v *bool) Decision {
	switch {
	case v == nil:
		return Unset
	case *v:
		return Accepted
	default:
		return Declined
	}
}

// Options are the shopper's checkout choices. AddMore is keyed by product id;
// AddMoreAll is the single-flag form and applies to every offer without a
// per-product answer.
type Options struct {
	ApplyMembership  bool
	AddMore          map[string]Decision
	AddMoreAll       Decision
	NonPromoPurchase Decision
}

// AddMoreFor returns the add-more decision for productID.
func (o Options) AddMoreFor(productID string) Decision {
	if d, ok := o.AddMore[productID]; ok && d != Unset {
		return d
	}
	return o.AddMoreAll
}

// Reset clears every advisory answer, keeping the membership choice. Used
// whenever the cart changes since earlier answers may no longer apply.
func (o Options) Reset() Options {
	return Options{ApplyMembership: o.ApplyMembership}
}

type wireOptions struct {
	ApplyMembership        bool            `json:"applyMembership"`
	AcceptAddMore          json.RawMessage `json:"acceptAddMore,omitempty"`
	AcceptNonPromoPurchase Decision        `json:"acceptNonPromoPurchase"`
}

// UnmarshalJSON decodes {"applyMembership", "acceptAddMore", "acceptNonPromoPurchase"}.
// acceptAddMore is either a nullable boolean or an object of product id to
// nullable boolean.
func (o *Options) UnmarshalJSON(data []byte) error {
	var w wireOptions
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Options{ApplyMembership: w.ApplyMembership, NonPromoPurchase: w.AcceptNonPromoPurchase}
	raw := bytes.TrimSpace(w.AcceptAddMore)
	switch {
	case len(raw) == 0:
	case raw[0] == '{':
		var per map[string]Decision
		if err := json.Unmarshal(raw, &per); err != nil {
			return fmt.Errorf("acceptAddMore: %w", err)
		}
		out.AddMore = per
	default:
		if err := json.Unmarshal(raw, &out.AddMoreAll); err != nil {
			return fmt.Errorf("acceptAddMore: %w", err)
		}
	}
	*o = out
	return nil
}

// MarshalJSON emits the per-product form when present, else the single flag.
func (o Options) MarshalJSON() ([]byte, error) {
	w := struct {
		ApplyMembership        bool     `json:"applyMembership"`
		AcceptAddMore          any      `json:"acceptAddMore"`
		AcceptNonPromoPurchase Decision `json:"acceptNonPromoPurchase"`
	}{ApplyMembership: o.ApplyMembership, AcceptAddMore: o.AddMoreAll, AcceptNonPromoPurchase: o.NonPromoPurchase}
	if len(o.AddMore) > 0 {
		w.AcceptAddMore = o.AddMore
	}
	return json.Marshal(w)
}
